package sequencer

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Clock is the time source of a run. Elapsed time is measured with
// Now().Sub, which uses the monotonic reading of time.Now.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock is the wall clock.
var RealClock Clock = realClock{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunIDs hands out millisecond timestamps as run ids. Ids are strictly
// increasing, so two runs started in the same millisecond still differ.
type RunIDs struct {
	now func() time.Time

	mu   sync.Mutex
	last int64
}

func NewRunIDs(now func() time.Time) *RunIDs {
	if now == nil {
		now = time.Now
	}
	return &RunIDs{now: now}
}

func (g *RunIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return strconv.FormatInt(ms, 10)
}
