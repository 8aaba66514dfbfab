package runs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/eeg-stimulus/internal/failure"
	"github.com/DoyleJ11/eeg-stimulus/internal/recording"
	"github.com/DoyleJ11/eeg-stimulus/internal/sequencer"
	"github.com/DoyleJ11/eeg-stimulus/internal/stimuli"
	"github.com/DoyleJ11/eeg-stimulus/internal/types"
)

type fakeRunner struct {
	mu      sync.Mutex
	next    int
	got     []sequencer.Config
	release chan struct{}
	result  sequencer.Result
}

func (f *fakeRunner) Prepare(cfg sequencer.Config) (sequencer.Job, error) {
	if err := cfg.Validate(); err != nil {
		return sequencer.Job{}, failure.New(failure.Invalid, "plan", err.Error())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.got = append(f.got, cfg)
	return sequencer.Job{Config: cfg, RunID: string(rune('0' + f.next))}, nil
}

func (f *fakeRunner) Execute(_ context.Context, job sequencer.Job) sequencer.Result {
	<-f.release
	res := f.result
	res.RunID = job.RunID
	return res
}

type fixedStates map[string]recording.State

func (s fixedStates) Run(runID string) (recording.Run, bool) {
	st, ok := s[runID]
	return recording.Run{RunID: runID, State: st}, ok
}

func words() stimuli.Set {
	return stimuli.Set{Repetitions: 2, Shuffle: "pairs", Blocks: []sequencer.Block{{Name: "a", Words: []string{"up", "down"}}}}
}

func TestLauncher_LaunchAndStatus(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{release: make(chan struct{}), result: sequencer.Result{Status: sequencer.StatusCompleted}}
	reg := NewRegistry(ctx)
	l := NewLauncher(ctx, runner, reg, fixedStates{"1": recording.StateSequencing}, words(), nil)

	runID, err := l.Launch(ctx, types.LaunchRequest{SubjectName: " Test1 ", CursorDuration: 0.25, WordDuration: 1})
	require.NoError(t, err)
	assert.Equal(t, "1", runID)

	require.Len(t, runner.got, 1)
	cfg := runner.got[0]
	assert.Equal(t, "Test1", cfg.SubjectName)
	assert.Equal(t, 250*time.Millisecond, cfg.CursorDuration)
	assert.Equal(t, 2, cfg.Repetitions)
	assert.Equal(t, sequencer.ShufflePairs, cfg.Shuffle)

	st, ok, err := l.Status(ctx, runID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sequencing", st.State)
	assert.False(t, st.Done)

	_, err = l.Launch(ctx, types.LaunchRequest{SubjectName: "Test2", CursorDuration: 0.25, WordDuration: 1})
	require.ErrorIs(t, err, failure.Busy)

	close(runner.release)
	require.Eventually(t, func() bool {
		st, _, _ := l.Status(ctx, runID)
		return st.Done
	}, time.Second, 10*time.Millisecond)

	st, _, _ = l.Status(ctx, runID)
	assert.Equal(t, sequencer.StatusCompleted, st.Status)
	assert.Empty(t, st.Error)
}

func TestLauncher_RejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	l := NewLauncher(ctx, &fakeRunner{release: make(chan struct{})}, NewRegistry(ctx), nil, words(), nil)

	_, err := l.Launch(ctx, types.LaunchRequest{SubjectName: "S", CursorDuration: 0, WordDuration: 1})
	require.ErrorIs(t, err, failure.Invalid)

	_, err = l.Launch(ctx, types.LaunchRequest{SubjectName: "S", CursorDuration: 1, WordDuration: 1, Shuffle: "sideways"})
	require.ErrorIs(t, err, failure.Invalid)

	_, ok, err := l.Status(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
