// Package recording maps start/stop recording requests, keyed by subject and
// run id, onto the device client. It owns run bookkeeping: one run records at
// a time and run ids are never reused within the process.
package recording

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/eeg-stimulus/internal/cortex"
	"github.com/DoyleJ11/eeg-stimulus/internal/failure"
	"github.com/DoyleJ11/eeg-stimulus/internal/logsink"
)

// State is the lifecycle position of a run.
type State string

const (
	StateIdle        State = "idle"
	StateHandshaking State = "handshaking"
	StateRecording   State = "recording"
	StateSequencing  State = "sequencing"
	StateStopping    State = "stopping"
	StateClosed      State = "closed"
)

// Device is the part of the cortex client the controller drives.
type Device interface {
	Handshake(ctx context.Context, streams []string) (cortex.Session, error)
	StartRecord(ctx context.Context, sessionID, label string) (cortex.Record, error)
	StopRecord(ctx context.Context, sessionID, label string) error
	CloseSession(ctx context.Context) error
}

// Exporter is implemented by devices that can export a stopped record.
type Exporter interface {
	ExpectPostProcessing(recordID string) (cortex.Waiter, error)
	ExportRecord(ctx context.Context, folder string, streamTypes []string, format string, recordIDs []string, version string) error
}

// Export configures record export after a run stops. An empty Folder turns
// export off.
type Export struct {
	Folder      string
	StreamTypes []string
	Format      string
	Version     string
	// Timeout bounds the wait for post-processing plus the export call.
	Timeout time.Duration
}

const defaultExportTimeout = 30 * time.Second

func (e Export) enabled() bool { return strings.TrimSpace(e.Folder) != "" }

// StartRequest describes a run to record.
type StartRequest struct {
	SubjectName     string
	RunID           string
	Sequence        []string
	CursorDelay     time.Duration
	WordDelay       time.Duration
	CommonEventTime time.Time
}

// Run is a snapshot of one run's bookkeeping.
type Run struct {
	SubjectName     string
	RunID           string
	Sequence        []string
	CursorDelay     time.Duration
	WordDelay       time.Duration
	CommonEventTime time.Time
	State           State

	Label     string
	SessionID string
	RecordID  string
	Err       string
}

// Options configures a Controller.
type Options struct {
	Streams []string
	Export  Export
	Logs    logsink.Sink
	Logger  *zap.Logger
	Now     func() time.Time
}

// Controller serializes recording lifecycles over one device.
type Controller struct {
	device  Device
	streams []string
	export  Export
	logs    logsink.Sink
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	runs   map[string]*Run
	active string
}

func New(device Device, opts Options) *Controller {
	if opts.Logs == nil {
		opts.Logs = logsink.Discard
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Export.Timeout <= 0 {
		opts.Export.Timeout = defaultExportTimeout
	}
	return &Controller{
		device:  device,
		streams: opts.Streams,
		export:  opts.Export,
		logs:    opts.Logs,
		logger:  opts.Logger.Named("recording"),
		now:     opts.Now,
		runs:    make(map[string]*Run),
	}
}

// Label is the on-device record title of a run.
func Label(subjectName, runID string) string {
	return subjectName + "-" + runID
}

const (
	opStart = "start_recording"
	opStop  = "stop_recording"
)

// StartRecording handshakes (or reuses the live session) and starts the
// device record for req. A run id seen before is a DuplicateRun failure; a new
// run while another one is in flight is a Busy failure. Failures are final:
// the run is closed and the session released.
func (c *Controller) StartRecording(ctx context.Context, req StartRequest) error {
	req.SubjectName = strings.TrimSpace(req.SubjectName)
	req.RunID = strings.TrimSpace(req.RunID)
	switch {
	case req.SubjectName == "":
		return failure.New(failure.Invalid, opStart, "subject name is required")
	case req.RunID == "":
		return failure.New(failure.Invalid, opStart, "run id is required")
	}

	run, err := c.admit(req)
	if err != nil {
		return err
	}
	log := c.logger.With(zap.String("run_id", run.RunID), zap.String("subject", run.SubjectName))
	log.Info("starting recording", zap.Int("sequence_len", len(run.Sequence)))

	session, err := c.device.Handshake(ctx, c.streams)
	if err != nil {
		return c.abort(ctx, run.RunID, err)
	}
	c.update(run.RunID, func(r *Run) { r.SessionID = session.ID })

	rec, err := c.device.StartRecord(ctx, session.ID, run.Label)
	if err != nil {
		return c.abort(ctx, run.RunID, err)
	}
	c.update(run.RunID, func(r *Run) {
		r.RecordID = rec.UUID
		r.State = StateRecording
	})
	log.Info("recording started", zap.String("session", session.ID), zap.String("record", rec.UUID))

	c.emit(ctx, run.SubjectName, run.RunID, fmt.Sprintf("Recording started (common event time %s)",
		run.CommonEventTime.UTC().Format(logsink.TimestampLayout)))
	return nil
}

func (c *Controller) admit(req StartRequest) (Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, seen := c.runs[req.RunID]; seen {
		return Run{}, failure.New(failure.DuplicateRun, opStart, "run "+req.RunID+" already started")
	}
	if c.active != "" {
		return Run{}, failure.New(failure.Busy, opStart, "run "+c.active+" is still in progress")
	}
	if req.CommonEventTime.IsZero() {
		req.CommonEventTime = c.now()
	}

	run := &Run{
		SubjectName:     req.SubjectName,
		RunID:           req.RunID,
		Sequence:        append([]string(nil), req.Sequence...),
		CursorDelay:     req.CursorDelay,
		WordDelay:       req.WordDelay,
		CommonEventTime: req.CommonEventTime,
		State:           StateHandshaking,
		Label:           Label(req.SubjectName, req.RunID),
	}
	c.runs[run.RunID] = run
	c.active = run.RunID
	return *run, nil
}

// abort closes a run whose start failed and releases whatever session the
// handshake left behind. cause is returned unchanged.
func (c *Controller) abort(ctx context.Context, runID string, cause error) error {
	c.logger.Warn("recording start failed", zap.String("run_id", runID), zap.Error(cause))
	if err := c.device.CloseSession(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("session release failed", zap.String("run_id", runID), zap.Error(err))
	}
	c.finish(runID, cause)
	return cause
}

// MarkSequencing records that stimulus presentation began for runID.
func (c *Controller) MarkSequencing(runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runs[runID]
	if !ok {
		return failure.New(failure.RecordState, "mark_sequencing", "unknown run "+runID)
	}
	if r.State != StateRecording {
		return failure.New(failure.RecordState, "mark_sequencing", "run "+runID+" is "+string(r.State))
	}
	r.State = StateSequencing
	return nil
}

// StopRecording stops the record of runID and releases the session. Unknown
// or already stopped runs are logged and ignored.
func (c *Controller) StopRecording(ctx context.Context, runID, subjectName string) error {
	c.mu.Lock()
	r, ok := c.runs[runID]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("stop for unknown run ignored", zap.String("run_id", runID))
		return nil
	}
	switch r.State {
	case StateStopping, StateClosed:
		c.mu.Unlock()
		c.logger.Warn("run already stopped", zap.String("run_id", runID), zap.String("state", string(r.State)))
		return nil
	case StateHandshaking:
		c.mu.Unlock()
		return failure.New(failure.RecordState, opStop, "run "+runID+" has not started recording")
	}
	if subjectName != "" && subjectName != r.SubjectName {
		c.logger.Warn("stop subject mismatch", zap.String("run_id", runID),
			zap.String("want", r.SubjectName), zap.String("got", subjectName))
	}
	r.State = StateStopping
	run := *r
	c.mu.Unlock()

	processed := c.expectPostProcessing(run)
	if processed != nil {
		defer processed.Release()
	}

	var err error
	stopErr := c.device.StopRecord(ctx, run.SessionID, run.Label)
	err = multierr.Append(err, stopErr)
	err = multierr.Append(err, c.device.CloseSession(ctx))

	if err != nil {
		c.logger.Warn("recording teardown incomplete", zap.String("run_id", runID), zap.Error(err))
	} else {
		c.logger.Info("recording stopped", zap.String("run_id", runID))
	}
	c.emit(ctx, run.SubjectName, runID, "Recording stopped")

	// The run stays in flight until the export is over, so no other run can
	// start on the device meanwhile.
	if processed != nil && stopErr == nil {
		c.exportRecord(ctx, run, processed)
	}
	c.finish(runID, err)
	return err
}

// expectPostProcessing registers for the record's post-processing warning
// before it is stopped. It returns nil when export is off or unsupported.
func (c *Controller) expectPostProcessing(run Run) cortex.Waiter {
	if !c.export.enabled() || run.RecordID == "" {
		return nil
	}
	ex, ok := c.device.(Exporter)
	if !ok {
		c.logger.Warn("device cannot export records", zap.String("run_id", run.RunID))
		return nil
	}
	w, err := ex.ExpectPostProcessing(run.RecordID)
	if err != nil {
		c.logger.Warn("cannot watch record post-processing", zap.String("run_id", run.RunID), zap.Error(err))
		return nil
	}
	return w
}

// exportRecord waits for post-processing and exports the record. Failures are
// logged to the run; the recording itself already stopped cleanly.
func (c *Controller) exportRecord(ctx context.Context, run Run, processed cortex.Waiter) {
	ctx, cancel := context.WithTimeout(ctx, c.export.Timeout)
	defer cancel()

	err := processed.Wait(ctx)
	if err == nil {
		c.emit(ctx, run.SubjectName, run.RunID, "Exporting record to folder: "+c.export.Folder)
		err = c.device.(Exporter).ExportRecord(ctx, c.export.Folder, c.export.StreamTypes,
			c.export.Format, []string{run.RecordID}, c.export.Version)
	}
	if err != nil {
		c.logger.Warn("record export failed", zap.String("run_id", run.RunID), zap.Error(err))
		c.emit(context.WithoutCancel(ctx), run.SubjectName, run.RunID, "Error exporting record: "+failure.Message(err))
		return
	}
	c.logger.Info("record exported", zap.String("run_id", run.RunID), zap.String("folder", c.export.Folder))
	c.emit(ctx, run.SubjectName, run.RunID, "Data export completed successfully.")
}

func (c *Controller) finish(runID string, err error) {
	c.update(runID, func(r *Run) {
		r.State = StateClosed
		if err != nil {
			r.Err = failure.Message(err)
		}
	})
	c.mu.Lock()
	if c.active == runID {
		c.active = ""
	}
	c.mu.Unlock()
}

func (c *Controller) update(runID string, fn func(*Run)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.runs[runID]; ok {
		fn(r)
	}
}

func (c *Controller) emit(ctx context.Context, subject, runID, msg string) {
	e := logsink.Entry{Timestamp: c.now(), SubjectName: subject, RunID: runID, Message: msg}
	if err := c.logs.Log(ctx, e); err != nil {
		c.logger.Warn("run log failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// Run returns a snapshot of runID.
func (c *Controller) Run(runID string) (Run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runs[runID]
	if !ok {
		return Run{}, false
	}
	return *r, true
}

// Active returns the run currently in flight, if any.
func (c *Controller) Active() (Run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == "" {
		return Run{}, false
	}
	return *c.runs[c.active], true
}
