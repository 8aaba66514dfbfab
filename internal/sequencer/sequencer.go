// Package sequencer runs word-pair stimulus experiments: it plans randomized
// blocks into a fixed phase timeline and presents them on a display while the
// EEG device records, logging every transition with a wall-clock timestamp.
package sequencer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/eeg-stimulus/internal/failure"
	"github.com/DoyleJ11/eeg-stimulus/internal/logsink"
	"github.com/DoyleJ11/eeg-stimulus/internal/recording"
)

// Operator status texts.
const (
	StatusStarting  = "Starting recording..."
	StatusStopping  = "UI sequence completed. Stopping recording shortly..."
	StatusCompleted = "Recording completed successfully!"
	statusErrPrefix = "Error: "
)

// Recorder starts and stops the device recording of a run.
type Recorder interface {
	StartRecording(ctx context.Context, req recording.StartRequest) error
	StopRecording(ctx context.Context, runID, subjectName string) error
}

// sequencingMarker is implemented by recorders that track presentation.
type sequencingMarker interface {
	MarkSequencing(runID string) error
}

// Display shows one (text, color) at a time.
type Display interface {
	Open(ctx context.Context) error
	Show(ctx context.Context, text, color string) error
	Close(ctx context.Context) error
}

// StatusFunc receives operator status updates.
type StatusFunc func(runID, status string)

// Deps wires a Sequencer. Recorder and Display are required.
type Deps struct {
	Recorder    Recorder
	Display     Display
	Logs        logsink.Sink
	Clock       Clock
	RunIDs      *RunIDs
	Shuffler    *Shuffler
	Status      StatusFunc
	Logger      *zap.Logger
	SettleDelay time.Duration
}

type Sequencer struct {
	recorder Recorder
	display  Display
	logs     logsink.Sink
	clock    Clock
	ids      *RunIDs
	shuffler *Shuffler
	status   StatusFunc
	logger   *zap.Logger
	settle   time.Duration
}

func New(d Deps) *Sequencer {
	if d.Logs == nil {
		d.Logs = logsink.Discard
	}
	if d.Clock == nil {
		d.Clock = RealClock
	}
	if d.RunIDs == nil {
		d.RunIDs = NewRunIDs(d.Clock.Now)
	}
	if d.Shuffler == nil {
		d.Shuffler = RandomShuffler()
	}
	if d.Status == nil {
		d.Status = func(string, string) {}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.SettleDelay <= 0 {
		d.SettleDelay = DefaultSettleDelay
	}
	return &Sequencer{
		recorder: d.Recorder,
		display:  d.Display,
		logs:     d.Logs,
		clock:    d.Clock,
		ids:      d.RunIDs,
		shuffler: d.Shuffler,
		status:   d.Status,
		logger:   d.Logger.Named("sequencer"),
		settle:   d.SettleDelay,
	}
}

// Job is a planned run with its id assigned.
type Job struct {
	Config Config
	RunID  string
	Plan   Plan
}

// Result is the outcome of a run.
type Result struct {
	RunID    string
	Status   string
	Phases   int
	Started  time.Time
	Finished time.Time
	Err      error
}

// Prepare validates cfg, plans the whole timeline and assigns a run id.
func (s *Sequencer) Prepare(cfg Config) (Job, error) {
	cfg = cfg.withDefaults()
	plan, err := Build(cfg, s.shuffler)
	if err != nil {
		return Job{}, &failure.Error{Kind: failure.Invalid, Op: "plan", Message: err.Error(), Err: err}
	}
	return Job{Config: cfg, RunID: s.ids.Next(), Plan: plan}, nil
}

// Run prepares and executes cfg.
func (s *Sequencer) Run(ctx context.Context, cfg Config) Result {
	job, err := s.Prepare(cfg)
	if err != nil {
		return Result{Status: statusErrPrefix + failure.Message(err), Err: err}
	}
	return s.Execute(ctx, job)
}

// Execute starts the recording, presents every phase of job and stops the
// recording exactly once. A failed start never opens the display; a failure
// after the start abandons the remaining phases but still stops recording.
func (s *Sequencer) Execute(ctx context.Context, job Job) Result {
	cfg := job.Config
	res := Result{RunID: job.RunID, Started: s.clock.Now()}
	log := s.logger.With(zap.String("run_id", job.RunID), zap.String("subject", cfg.SubjectName))
	r := runLog{s: s, subject: cfg.SubjectName, runID: job.RunID}

	s.setStatus(&res, StatusStarting)

	commonEvent := s.clock.Now()
	r.logf(ctx, "Common event: Recording initiated at %s", commonEvent.UTC().Format(logsink.TimestampLayout))

	err := s.recorder.StartRecording(ctx, recording.StartRequest{
		SubjectName:     cfg.SubjectName,
		RunID:           job.RunID,
		Sequence:        job.Plan.Sequence(),
		CursorDelay:     cfg.CursorDuration,
		WordDelay:       cfg.WordDuration,
		CommonEventTime: commonEvent,
	})
	if err != nil {
		if failure.KindOf(err) == failure.Remote {
			r.logf(ctx, "Error starting recording: %s", failure.Message(err))
		}
		r.logf(ctx, "Failed to start recording: %s", failure.Message(err))
		log.Warn("recording did not start", zap.Error(err))
		return s.fail(&res, err)
	}
	r.logf(ctx, "Recording started successfully")

	if m, ok := s.recorder.(sequencingMarker); ok {
		if err := m.MarkSequencing(job.RunID); err != nil {
			log.Warn("mark sequencing failed", zap.Error(err))
		}
	}

	r.logf(ctx, "Starting delay period")
	err = s.present(ctx, r, job.Plan, &res)
	if err != nil {
		r.logf(ctx, "Error during recording sequence: %s", failure.Message(err))
		log.Warn("sequence aborted", zap.Int("phases_done", res.Phases), zap.Error(err))
	} else {
		s.setStatus(&res, StatusStopping)
		if serr := s.clock.Sleep(ctx, s.settle); serr != nil {
			err = serr
		}
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if stopErr := s.recorder.StopRecording(stopCtx, job.RunID, cfg.SubjectName); stopErr != nil {
		r.logf(ctx, "Error stopping recording: %s", failure.Message(stopErr))
		log.Warn("stop recording failed", zap.Error(stopErr))
	}

	if err != nil {
		return s.fail(&res, err)
	}
	s.setStatus(&res, StatusCompleted)
	res.Finished = s.clock.Now()
	log.Info("run completed", zap.Int("phases", res.Phases), zap.Duration("elapsed", res.Finished.Sub(res.Started)))
	return res
}

// present opens the display, runs every phase and closes the display again.
func (s *Sequencer) present(ctx context.Context, r runLog, plan Plan, res *Result) (err error) {
	if err := s.display.Open(ctx); err != nil {
		return err
	}
	defer func() {
		closeErr := s.display.Close(context.WithoutCancel(ctx))
		r.logf(ctx, "Recording display closed")
		if err == nil {
			err = closeErr
		}
	}()

	for _, ph := range plan.Phases {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ph.PairStart {
			r.logf(ctx, "Starting pair %d: [%s, %s]", ph.Pair, ph.First, ph.Second)
		}
		if err := s.display.Show(ctx, ph.Text, ph.Color); err != nil {
			return err
		}
		r.logf(ctx, "Updated display to '%s' with text color '%s'", ph.Text, ph.Color)
		r.logf(ctx, "%s", ph.Describe())

		start := s.clock.Now()
		if err := s.clock.Sleep(ctx, ph.Duration); err != nil {
			return err
		}
		elapsed := s.clock.Now().Sub(start)
		s.logger.Debug("phase elapsed",
			zap.Int("phase", ph.Index),
			zap.Duration("expected", ph.Duration),
			zap.Duration("actual", elapsed),
			zap.Duration("drift", elapsed-ph.Duration))
		res.Phases++
	}
	return nil
}

func (s *Sequencer) fail(res *Result, err error) Result {
	res.Err = err
	s.setStatus(res, statusErrPrefix+failure.Message(err))
	res.Finished = s.clock.Now()
	return *res
}

func (s *Sequencer) setStatus(res *Result, status string) {
	res.Status = status
	s.status(res.RunID, status)
}

type runLog struct {
	s       *Sequencer
	subject string
	runID   string
}

// logf emits one run log entry. Delivery failures never stop a run.
func (r runLog) logf(ctx context.Context, format string, args ...any) {
	e := logsink.Entry{
		Timestamp:   r.s.clock.Now(),
		SubjectName: r.subject,
		RunID:       r.runID,
		Message:     fmt.Sprintf(format, args...),
	}
	if err := r.s.logs.Log(context.WithoutCancel(ctx), e); err != nil {
		r.s.logger.Warn("run log failed", zap.String("run_id", r.runID), zap.Error(err))
	}
}
