// Package runs tracks the stimulus runs launched by the backend process and
// their operator status.
package runs

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/eeg-stimulus/internal/failure"
)

var ErrRegistryClosed = errors.New("run registry closed")

type Msg interface{ isRunsMsg() }

// Track registers a new run. Reply receives nil, or a DuplicateRun/Busy failure.
type Track struct {
	RunID       string
	SubjectName string
	Reply       chan error
}

type SetStatus struct {
	RunID  string
	Status string
}

type Finish struct {
	RunID  string
	Status string
	Err    string
}

type Get struct {
	RunID string
	Reply chan *Entry // nil when unknown
}

type Shutdown struct{}

func (Track) isRunsMsg()     {}
func (SetStatus) isRunsMsg() {}
func (Finish) isRunsMsg()    {}
func (Get) isRunsMsg()       {}
func (Shutdown) isRunsMsg()  {}

// Entry is a copy of one run's status.
type Entry struct {
	RunID       string
	SubjectName string
	Status      string
	Done        bool
	Err         string
	Started     time.Time
	Finished    time.Time
}

type Registry struct {
	inbox  chan Msg
	runs   map[string]*Entry
	active string
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRegistry(parent context.Context) *Registry {
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		inbox:  make(chan Msg, 64),
		runs:   make(map[string]*Entry),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	go r.loop()
	return r
}

func (r *Registry) Inbox() chan<- Msg { return r.inbox }

func (r *Registry) loop() {
	for {
		select {
		case <-r.ctx.Done():
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Track:
				if _, ok := r.runs[msg.RunID]; ok {
					msg.Reply <- failure.New(failure.DuplicateRun, "launch", "run "+msg.RunID+" already exists")
					break
				}
				if r.active != "" {
					msg.Reply <- failure.New(failure.Busy, "launch", "run "+r.active+" is still in progress")
					break
				}
				r.runs[msg.RunID] = &Entry{RunID: msg.RunID, SubjectName: msg.SubjectName, Started: r.now()}
				r.active = msg.RunID
				msg.Reply <- nil

			case SetStatus:
				if e := r.runs[msg.RunID]; e != nil && !e.Done {
					e.Status = msg.Status
				}

			case Finish:
				if e := r.runs[msg.RunID]; e != nil {
					e.Status, e.Err, e.Done = msg.Status, msg.Err, true
					e.Finished = r.now()
				}
				if r.active == msg.RunID {
					r.active = ""
				}

			case Get:
				if e := r.runs[msg.RunID]; e != nil {
					cp := *e
					msg.Reply <- &cp
					break
				}
				msg.Reply <- nil

			case Shutdown:
				clear(r.runs)
				r.cancel()
			}
		}
	}
}

func (r *Registry) send(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.ctx.Done():
		return ErrRegistryClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Track admits a new run.
func (r *Registry) Track(ctx context.Context, runID, subject string) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, Track{RunID: runID, SubjectName: subject, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-r.ctx.Done():
		return ErrRegistryClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetStatus records an operator status update. It never blocks the caller
// for long: updates sent after shutdown are dropped.
func (r *Registry) SetStatus(runID, status string) {
	_ = r.send(context.Background(), SetStatus{RunID: runID, Status: status})
}

func (r *Registry) Finish(runID, status, errMsg string) {
	_ = r.send(context.Background(), Finish{RunID: runID, Status: status, Err: errMsg})
}

// Get returns a copy of runID's entry.
func (r *Registry) Get(ctx context.Context, runID string) (Entry, bool, error) {
	reply := make(chan *Entry, 1)
	if err := r.send(ctx, Get{RunID: runID, Reply: reply}); err != nil {
		return Entry{}, false, err
	}
	select {
	case e := <-reply:
		if e == nil {
			return Entry{}, false, nil
		}
		return *e, true, nil
	case <-r.ctx.Done():
		return Entry{}, false, ErrRegistryClosed
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	}
}
