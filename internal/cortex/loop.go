package cortex

import (
	"context"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/eeg-stimulus/internal/failure"
)

// clientMsg is anything the dispatch loop accepts on its inbox.
type clientMsg interface{ isClientMsg() }

type register struct {
	id     uint64
	method string
	reply  chan response
}

func (register) isClientMsg() {}

type forget struct{ id uint64 }

func (forget) isClientMsg() {}

type inbound struct{ data []byte }

func (inbound) isClientMsg() {}

type readFailed struct{ err error }

func (readFailed) isClientMsg() {}

type attachStream struct {
	sid string
	out chan StreamEvent
}

func (attachStream) isClientMsg() {}

type detachStream struct{ sid string }

func (detachStream) isClientMsg() {}

type watchWarnings struct{ out chan Warning }

func (watchWarnings) isClientMsg() {}

type unwatchWarnings struct{ out chan Warning }

func (unwatchWarnings) isClientMsg() {}

type pendingCall struct {
	method string
	reply  chan response
}

// loop is the only goroutine touching the pending table, the stream routes and
// the warning watchers.
func (c *Client) loop(ctx context.Context, conn *websocket.Conn, inbox <-chan clientMsg, done chan struct{}) {
	pending := make(map[uint64]pendingCall)
	streams := make(map[string]chan StreamEvent)
	watchers := make(map[chan Warning]struct{})

	defer func() {
		c.connectionLost(conn)
		for id, p := range pending {
			p.reply <- response{err: failure.New(failure.Connection, p.method, "connection closed")}
			delete(pending, id)
		}
		for sid, ch := range streams {
			close(ch)
			delete(streams, sid)
		}
		for ch := range watchers {
			close(ch)
			delete(watchers, ch)
		}
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case m := <-inbox:
			switch msg := m.(type) {
			case register:
				pending[msg.id] = pendingCall{method: msg.method, reply: msg.reply}

			case forget:
				delete(pending, msg.id)

			case attachStream:
				if old, ok := streams[msg.sid]; ok && old != msg.out {
					close(old)
				}
				streams[msg.sid] = msg.out

			case detachStream:
				if ch, ok := streams[msg.sid]; ok {
					close(ch)
					delete(streams, msg.sid)
				}

			case watchWarnings:
				watchers[msg.out] = struct{}{}

			case unwatchWarnings:
				delete(watchers, msg.out)

			case inbound:
				c.dispatch(msg.data, pending, streams, watchers)

			case readFailed:
				if ctx.Err() == nil {
					c.logger.Warn("socket read failed", zap.Error(msg.err),
						zap.Int("pending", len(pending)))
				}
				return
			}
		}
	}
}

func (c *Client) dispatch(data []byte, pending map[uint64]pendingCall, streams map[string]chan StreamEvent, watchers map[chan Warning]struct{}) {
	f, err := decodeFrame(data)
	if err != nil {
		c.logger.Warn("dropping undecodable frame", zap.Error(err), zap.ByteString("frame", truncate(data)))
		return
	}

	switch {
	case f.hasID:
		p, ok := pending[f.id]
		if !ok {
			c.logger.Warn("dropping response with no pending request", zap.Uint64("id", f.id))
			return
		}
		delete(pending, f.id)
		p.reply <- response{result: f.result, rpcErr: f.err}

	case f.warning != nil:
		c.logger.Info("cortex warning", zap.Int("code", f.warning.Code),
			zap.ByteString("message", f.warning.Message))
		for ch := range watchers {
			select {
			case ch <- *f.warning:
			default:
				c.logger.Warn("warning watcher is behind", zap.Int("code", f.warning.Code))
			}
		}

	case f.sid != "":
		ch, ok := streams[f.sid]
		if !ok {
			c.logger.Debug("dropping frame for unknown subscription", zap.String("sid", f.sid))
			return
		}
		for name, payload := range f.streams {
			select {
			case ch <- StreamEvent{SID: f.sid, Stream: name, Time: f.time, Data: payload}:
			default:
				// Consumer is behind; drop the sample rather than stall responses.
			}
		}

	default:
		c.logger.Warn("dropping frame without id", zap.ByteString("frame", truncate(data)))
	}
}

// readLoop feeds raw frames into the dispatch loop until the socket fails.
func readLoop(ctx context.Context, conn *websocket.Conn, inbox chan<- clientMsg, done <-chan struct{}) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case inbox <- readFailed{err: err}:
			case <-done:
			}
			return
		}
		select {
		case inbox <- inbound{data: data}:
		case <-done:
			return
		}
	}
}

func truncate(b []byte) []byte {
	const max = 256
	if len(b) > max {
		return b[:max]
	}
	return b
}
