// Package display fans the current stimulus frame out to viewers: browser
// windows over a websocket (Hub) or the operator's terminal (Terminal).
package display

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/eeg-stimulus/pkg/types"
)

var ErrHubClosed = errors.New("display hub closed")

type Msg interface{ isDisplayMsg() }

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this viewer receives frames
}

func (Join) isDisplayMsg() {}

type Leave struct{ ClientID string }

func (Leave) isDisplayMsg() {}

// SetFrame replaces the current frame. Reply, when set, receives the new version.
type SetFrame struct {
	Frame types.Frame
	Reply chan int
}

func (SetFrame) isDisplayMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isDisplayMsg() {}

type Shutdown struct{}

func (Shutdown) isDisplayMsg() {}

type Snapshot struct {
	Version int
	Frame   types.Frame
}

type View struct {
	Version    int
	NumViewers int
	Frame      types.Frame
}

// Hub owns the current frame and the connected viewers.
type Hub struct {
	inbox   chan Msg
	frame   types.Frame
	version int
	viewers map[string]chan Snapshot
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan Msg, 64),
		frame:   types.Frame{Color: "black"},
		viewers: make(map[string]chan Snapshot),
		logger:  logger.Named("display"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				// New viewers get the current frame immediately.
				h.viewers[msg.ClientID] = msg.Outbox
				msg.Outbox <- Snapshot{Version: h.version, Frame: h.frame}
				h.logger.Debug("viewer joined", zap.String("viewer", msg.ClientID), zap.Int("viewers", len(h.viewers)))

			case Leave:
				delete(h.viewers, msg.ClientID)

			case SetFrame:
				h.frame = msg.Frame
				h.version++
				h.broadcast(Snapshot{Version: h.version, Frame: h.frame})
				if msg.Reply != nil {
					msg.Reply <- h.version
				}

			case GetState:
				msg.Reply <- View{Version: h.version, NumViewers: len(h.viewers), Frame: h.frame}

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.viewers {
		close(ch) // no more frames
		delete(h.viewers, id)
	}
	h.cancel()
}

func (h *Hub) broadcast(snap Snapshot) {
	for id, ch := range h.viewers {
		select {
		case ch <- snap:
		default:
			// Viewer is behind; drop it rather than delay the stimulus.
			h.logger.Warn("dropping slow viewer", zap.String("viewer", id))
			close(ch)
			delete(h.viewers, id)
		}
	}
}

// Inbox exposes the hub's inbox to the websocket layer and tests.
func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// Done is closed once the hub stopped.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) send(ctx context.Context, m Msg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) set(ctx context.Context, f types.Frame) error {
	reply := make(chan int, 1)
	if err := h.send(ctx, SetFrame{Frame: f, Reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the hub's current view.
func (h *Hub) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := h.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return View{}, ErrHubClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Open makes the display visible with a blank frame.
func (h *Hub) Open(ctx context.Context) error {
	if v, err := h.State(ctx); err == nil && v.NumViewers == 0 {
		h.logger.Warn("display opened with no viewers connected")
	}
	return h.set(ctx, types.Frame{Color: "black", Visible: true})
}

// Show replaces the visible text.
func (h *Hub) Show(ctx context.Context, text, color string) error {
	return h.set(ctx, types.Frame{Text: text, Color: color, Visible: true})
}

// Close hides the display.
func (h *Hub) Close(ctx context.Context) error {
	return h.set(ctx, types.Frame{Color: "black"})
}
