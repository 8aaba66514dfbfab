// Package cortex is a client for the Emotiv Cortex JSON-RPC protocol spoken
// over a websocket. The Client owns the socket and the table of pending
// requests; everything else talks to the device through its methods.
package cortex

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/eeg-stimulus/internal/failure"
)

const (
	defaultDialTimeout    = 5 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultAccessTimeout  = 2 * time.Minute
	defaultAccessInterval = time.Second
	readLimit             = 4 << 20
	streamBuffer          = 256
)

// Config holds connection and credential settings.
type Config struct {
	URL          string
	ClientID     string
	ClientSecret string
	License      string
	Debit        int
	// HeadsetID pins the headset used by Handshake. Empty picks the first one.
	HeadsetID   string
	InsecureTLS bool

	// RecordDescription is attached to every record created by StartRecord.
	RecordDescription string

	DialTimeout    time.Duration
	RequestTimeout time.Duration
	AccessTimeout  time.Duration
	AccessInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.AccessTimeout <= 0 {
		c.AccessTimeout = defaultAccessTimeout
	}
	if c.AccessInterval <= 0 {
		c.AccessInterval = defaultAccessInterval
	}
	return c
}

// Client is a single Cortex connection. It is safe for concurrent use, but the
// handshake is a strict sequence: each stage requires the previous one.
type Client struct {
	cfg    Config
	logger *zap.Logger
	nextID atomic.Uint64

	mu      sync.Mutex
	conn    *websocket.Conn
	inbox   chan clientMsg
	done    chan struct{}
	cancel  context.CancelFunc
	state   State
	token   string
	session *Session
	record  *Record
	stopped map[string]bool
}

// New returns a disconnected client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg.withDefaults(),
		logger:  logger.Named("cortex"),
		state:   StateDisconnected,
		stopped: make(map[string]bool),
	}
}

// State returns the current handshake state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the socket. It is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return failure.New(failure.Connection, "connect", "client closed")
	}
	if c.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, &websocket.DialOptions{
		HTTPClient: c.httpClient(),
	})
	if err != nil {
		return failure.Wrap(failure.Connection, "connect", err)
	}
	conn.SetReadLimit(readLimit)

	loopCtx, loopCancel := context.WithCancel(context.Background())
	c.conn = conn
	c.inbox = make(chan clientMsg, 64)
	c.done = make(chan struct{})
	c.cancel = loopCancel
	c.state = StateConnected

	go c.loop(loopCtx, conn, c.inbox, c.done)
	go readLoop(loopCtx, conn, c.inbox, c.done)

	c.logger.Info("connected", zap.String("url", c.cfg.URL))
	return nil
}

func (c *Client) httpClient() *http.Client {
	if !c.cfg.InsecureTLS {
		return http.DefaultClient
	}
	// The launcher serves localhost with a self-signed certificate.
	return &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}}
}

// Close tears down the socket. Pending requests fail with a connection error.
// The client cannot be reused afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	conn, cancel, done := c.conn, c.cancel, c.done
	c.conn = nil
	c.state = StateClosed
	c.session = nil
	c.record = nil
	c.token = ""
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		c.logger.Debug("close handshake incomplete", zap.Error(err))
	}
	cancel()
	<-done
	return nil
}

// connectionLost resets the client after the socket dropped. There is no
// automatic reconnect; the next Handshake dials again.
func (c *Client) connectionLost(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.conn = nil
	c.session = nil
	c.record = nil
	c.token = ""
	if c.state != StateClosed {
		c.state = StateDisconnected
	}
}

type response struct {
	result json.RawMessage
	rpcErr *RPCError
	err    error
}

// call issues one correlated request and waits for its response.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	conn, inbox, done := c.conn, c.inbox, c.done
	c.mu.Unlock()
	if conn == nil {
		return failure.New(failure.Connection, method, "not connected")
	}

	id := c.nextID.Add(1)
	reply := make(chan response, 1)

	select {
	case inbox <- register{id: id, method: method, reply: reply}:
	case <-done:
		return failure.New(failure.Connection, method, "connection closed")
	case <-ctx.Done():
		return ctx.Err()
	}

	payload, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		c.forget(inbox, done, id)
		return failure.Wrap(failure.Invalid, method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		c.forget(inbox, done, id)
		if ctx.Err() != nil {
			return requestCtxErr(ctx, method)
		}
		return failure.Wrap(failure.Connection, method, err)
	}
	c.logger.Debug("request sent", zap.Uint64("id", id), zap.String("method", method))

	select {
	case resp := <-reply:
		if resp.err != nil {
			return resp.err
		}
		if resp.rpcErr != nil {
			return resp.rpcErr
		}
		if result != nil && len(resp.result) > 0 {
			if err := json.Unmarshal(resp.result, result); err != nil {
				return failure.Wrap(failure.Invalid, method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.forget(inbox, done, id)
		return requestCtxErr(ctx, method)
	case <-done:
		select {
		case resp := <-reply:
			if resp.err != nil {
				return resp.err
			}
		default:
		}
		return failure.New(failure.Connection, method, "connection closed")
	}
}

func requestCtxErr(ctx context.Context, method string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &failure.Error{Kind: failure.Timeout, Op: method, Message: "no response before deadline", Err: ctx.Err()}
	}
	return ctx.Err()
}

func (c *Client) forget(inbox chan<- clientMsg, done <-chan struct{}, id uint64) {
	select {
	case inbox <- forget{id: id}:
	case <-done:
	}
}

// classify turns a call error into a tagged failure of the given kind.
// Connection and timeout failures keep their own kind.
func classify(kind failure.Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return &failure.Error{Kind: kind, Op: op, Message: rpcErr.Message, Code: rpcErr.Code, Err: rpcErr}
	}
	switch failure.KindOf(err) {
	case "":
		if errors.Is(err, context.Canceled) {
			return err
		}
		return failure.Wrap(kind, op, err)
	default:
		return err
	}
}
