package runs

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/eeg-stimulus/internal/failure"
	"github.com/DoyleJ11/eeg-stimulus/internal/recording"
	"github.com/DoyleJ11/eeg-stimulus/internal/sequencer"
	"github.com/DoyleJ11/eeg-stimulus/internal/stimuli"
	"github.com/DoyleJ11/eeg-stimulus/internal/types"
)

// Runner is the part of the sequencer a Launcher drives.
type Runner interface {
	Prepare(cfg sequencer.Config) (sequencer.Job, error)
	Execute(ctx context.Context, job sequencer.Job) sequencer.Result
}

// RunStates reports the recording state of a run.
type RunStates interface {
	Run(runID string) (recording.Run, bool)
}

// Launcher starts sequences inside the backend process.
type Launcher struct {
	ctx      context.Context
	runner   Runner
	registry *Registry
	states   RunStates
	words    stimuli.Set
	logger   *zap.Logger

	wg sync.WaitGroup
}

// NewLauncher returns a launcher whose runs live until ctx ends.
func NewLauncher(ctx context.Context, runner Runner, registry *Registry, states RunStates, words stimuli.Set, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{
		ctx:      ctx,
		runner:   runner,
		registry: registry,
		states:   states,
		words:    words,
		logger:   logger.Named("launcher"),
	}
}

// Launch plans req, registers the run and executes it in the background.
// It returns as soon as the run is admitted.
func (l *Launcher) Launch(ctx context.Context, req types.LaunchRequest) (string, error) {
	shuffle := req.Shuffle
	if shuffle == "" {
		shuffle = l.words.Shuffle
	}
	mode, err := sequencer.ParseShuffleMode(shuffle)
	if err != nil {
		return "", failure.New(failure.Invalid, "launch", err.Error())
	}
	cfg := l.words.Config(sequencer.Config{
		SubjectName:    strings.TrimSpace(req.SubjectName),
		CursorDuration: seconds(req.CursorDuration),
		WordDuration:   seconds(req.WordDuration),
		Repetitions:    req.Repetitions,
		Shuffle:        mode,
	})

	job, err := l.runner.Prepare(cfg)
	if err != nil {
		return "", err
	}
	if err := l.registry.Track(ctx, job.RunID, cfg.SubjectName); err != nil {
		return "", err
	}

	l.logger.Info("run launched", zap.String("run_id", job.RunID), zap.String("subject", cfg.SubjectName),
		zap.Int("phases", len(job.Plan.Phases)), zap.Duration("planned", job.Plan.Duration()))
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		res := l.runner.Execute(l.ctx, job)
		errMsg := ""
		if res.Err != nil {
			errMsg = failure.Message(res.Err)
		}
		l.registry.Finish(job.RunID, res.Status, errMsg)
	}()
	return job.RunID, nil
}

// Wait blocks until every launched run has returned from Execute, including
// its recording stop, or until ctx ends.
func (l *Launcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports a launched run. The registry's status wins; the recording
// state comes from the controller.
func (l *Launcher) Status(ctx context.Context, runID string) (types.RunStatus, bool, error) {
	e, ok, err := l.registry.Get(ctx, runID)
	if err != nil || !ok {
		return types.RunStatus{}, ok, err
	}
	st := types.RunStatus{
		RunID:       e.RunID,
		SubjectName: e.SubjectName,
		State:       string(recording.StateIdle),
		Status:      e.Status,
		Done:        e.Done,
		Error:       e.Err,
	}
	if l.states != nil {
		if r, ok := l.states.Run(runID); ok {
			st.State = string(r.State)
		}
	}
	return st, true, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
