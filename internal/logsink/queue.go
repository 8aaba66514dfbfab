package logsink

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrQueueClosed = errors.New("log queue closed")

// Queue delivers entries to the next sink on one goroutine, in the order they
// were logged. Log returns once the entry is queued; delivery failures are
// only logged.
type Queue struct {
	next   Sink
	logger *zap.Logger
	in     chan Entry
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewQueue(next Sink, size int, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		next:   next,
		logger: logger.Named("logqueue"),
		in:     make(chan Entry, size),
		done:   make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *Queue) loop() {
	defer close(q.done)
	for e := range q.in {
		if err := q.next.Log(context.Background(), e); err != nil {
			q.logger.Warn("log delivery failed",
				zap.String("run_id", e.RunID), zap.String("message", e.Message), zap.Error(err))
		}
	}
}

// Log enqueues e. It blocks only while the buffer is full.
func (q *Queue) Log(ctx context.Context, e Entry) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.in <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting entries and waits until the queued ones are
// delivered or ctx ends.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.in)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
