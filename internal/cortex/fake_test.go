package cortex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

type rpcCall struct {
	ID     uint64
	Method string
	Params map[string]any
}

// handlerFunc answers one request. Returning noReply leaves the request
// unanswered; a non-nil *RPCError is sent as the error object.
type handlerFunc func(f *fakeCortex, call rpcCall) (any, *RPCError)

var noReply = &struct{ noReply bool }{true}

// fakeCortex is a scripted Cortex launcher served over httptest.
type fakeCortex struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	handlers map[string]handlerFunc
	calls    []rpcCall
	conn     *websocket.Conn
}

func newFakeCortex(t *testing.T) *fakeCortex {
	t.Helper()
	f := &fakeCortex{t: t, handlers: defaultHandlers()}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func defaultHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		methodRequestAccess: func(*fakeCortex, rpcCall) (any, *RPCError) {
			return map[string]any{"accessGranted": true, "message": "granted"}, nil
		},
		methodAuthorize: func(*fakeCortex, rpcCall) (any, *RPCError) {
			return map[string]any{"cortexToken": "tok-1"}, nil
		},
		methodQueryHeadsets: func(*fakeCortex, rpcCall) (any, *RPCError) {
			return []map[string]any{{"id": "INSIGHT-A1", "status": HeadsetConnected}}, nil
		},
		methodControlDevice: func(*fakeCortex, rpcCall) (any, *RPCError) {
			return map[string]any{"command": "connect", "message": "ok"}, nil
		},
		methodCreateSession: func(_ *fakeCortex, c rpcCall) (any, *RPCError) {
			return map[string]any{"id": "sess-1", "status": "activated", "headset": map[string]any{"id": c.Params["headset"]}}, nil
		},
		methodSubscribe: func(*fakeCortex, rpcCall) (any, *RPCError) {
			return map[string]any{"success": []map[string]any{{"streamName": "eeg", "cols": []string{"AF3", "T7"}, "sid": "sess-1"}}}, nil
		},
		methodUnsubscribe: func(*fakeCortex, rpcCall) (any, *RPCError) {
			return map[string]any{"success": []map[string]any{{"streamName": "eeg"}}}, nil
		},
		methodCreateRecord: func(_ *fakeCortex, c rpcCall) (any, *RPCError) {
			return map[string]any{"record": map[string]any{"uuid": "rec-1", "title": c.Params["title"]}, "sessionId": "sess-1"}, nil
		},
		methodStopRecord: func(*fakeCortex, rpcCall) (any, *RPCError) {
			return map[string]any{"record": map[string]any{"uuid": "rec-1"}, "sessionId": "sess-1"}, nil
		},
		methodUpdateSession: func(*fakeCortex, rpcCall) (any, *RPCError) {
			return map[string]any{"id": "sess-1", "status": "closed"}, nil
		},
	}
}

func (f *fakeCortex) handle(method string, h handlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeCortex) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakeCortex) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Method)
	}
	return out
}

func (f *fakeCortex) ids() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.ID)
	}
	return out
}

func (f *fakeCortex) count(method string) int {
	n := 0
	for _, m := range f.methods() {
		if m == method {
			n++
		}
	}
	return n
}

// push writes a raw frame to the connected client.
func (f *fakeCortex) push(v any) {
	f.t.Helper()
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		f.t.Fatalf("push: no client connected")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		f.t.Fatalf("push: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}

// drop closes the server side of the socket.
func (f *fakeCortex) drop() {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusGoingAway, "launcher closed")
	}
}

func (f *fakeCortex) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var call rpcCall
		if err := json.Unmarshal(data, &call); err != nil {
			continue
		}

		f.mu.Lock()
		f.calls = append(f.calls, call)
		h := f.handlers[call.Method]
		f.mu.Unlock()

		var result any
		var rpcErr *RPCError
		if h == nil {
			rpcErr = &RPCError{Code: -32601, Message: "Method not found"}
		} else {
			result, rpcErr = h(f, call)
		}
		if result == noReply {
			continue
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": call.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		payload, _ := json.Marshal(resp)
		if err := conn.Write(r.Context(), websocket.MessageText, payload); err != nil {
			return
		}
	}
}

func newTestClient(t *testing.T, f *fakeCortex, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		URL:            f.url(),
		ClientID:       "client",
		ClientSecret:   "secret",
		Debit:          1,
		DialTimeout:    time.Second,
		RequestTimeout: time.Second,
		AccessTimeout:  time.Second,
		AccessInterval: 10 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c := New(cfg, zap.NewNop())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// lastParams returns the params of the most recent call to method.
func (f *fakeCortex) lastParams(method string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return f.calls[i].Params
		}
	}
	return nil
}
