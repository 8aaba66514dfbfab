package cortex

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/eeg-stimulus/internal/failure"
)

// require fails with kind unless the handshake reached min.
func (c *Client) require(op string, kind failure.Kind, min State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state == StateClosed:
		return failure.New(failure.Connection, op, "client closed")
	case c.conn == nil:
		return failure.New(failure.Connection, op, "not connected")
	case !c.state.Reached(min):
		return failure.New(kind, op, "requires state "+string(min)+", client is "+string(c.state))
	}
	return nil
}

// advance moves the state forward; it never moves it back.
func (c *Client) advance(to State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && !c.state.Reached(to) {
		c.logger.Debug("state", zap.String("from", string(c.state)), zap.String("to", string(to)))
		c.state = to
	}
}

func (c *Client) credentials() map[string]any {
	return map[string]any{
		"clientId":     c.cfg.ClientID,
		"clientSecret": c.cfg.ClientSecret,
	}
}

// RequestAccess asks the launcher to grant this application access. The grant
// needs a human to approve it in the launcher, so false is a normal answer.
func (c *Client) RequestAccess(ctx context.Context) (bool, error) {
	if err := c.require(methodRequestAccess, failure.AccessDenied, StateConnected); err != nil {
		return false, err
	}
	var res accessResult
	if err := c.call(ctx, methodRequestAccess, c.credentials(), &res); err != nil {
		return false, classify(failure.AccessDenied, methodRequestAccess, err)
	}
	if res.AccessGranted {
		c.advance(StateAccessRequested)
	} else {
		c.logger.Debug("access not granted yet", zap.String("message", res.Message))
	}
	return res.AccessGranted, nil
}

// Authorize exchanges the client credentials for a cortex token.
func (c *Client) Authorize(ctx context.Context) (string, error) {
	if err := c.require(methodAuthorize, failure.Auth, StateAccessRequested); err != nil {
		return "", err
	}
	params := c.credentials()
	if c.cfg.License != "" {
		params["license"] = c.cfg.License
	}
	if c.cfg.Debit > 0 {
		params["debit"] = c.cfg.Debit
	}

	var res authorizeResult
	if err := c.call(ctx, methodAuthorize, params, &res); err != nil {
		return "", classify(failure.Auth, methodAuthorize, err)
	}
	if res.CortexToken == "" {
		return "", failure.New(failure.Auth, methodAuthorize, "empty cortex token")
	}

	c.mu.Lock()
	c.token = res.CortexToken
	c.mu.Unlock()
	c.advance(StateAuthorized)
	return res.CortexToken, nil
}

// QueryHeadsets lists discovered headsets in launcher order. An empty list is
// not an error.
func (c *Client) QueryHeadsets(ctx context.Context) ([]Headset, error) {
	if err := c.require(methodQueryHeadsets, failure.Remote, StateConnected); err != nil {
		return nil, err
	}
	params := map[string]any{}
	if c.cfg.HeadsetID != "" {
		params["id"] = c.cfg.HeadsetID
	}
	var headsets []Headset
	if err := c.call(ctx, methodQueryHeadsets, params, &headsets); err != nil {
		return nil, classify(failure.Remote, methodQueryHeadsets, err)
	}
	return headsets, nil
}

// ControlDevice sends a refresh/connect/disconnect command. The physical
// connection is outside our control, so success only means the launcher
// accepted the command.
func (c *Client) ControlDevice(ctx context.Context, command, headsetID string) error {
	if err := c.require(methodControlDevice, failure.Remote, StateConnected); err != nil {
		return err
	}
	params := map[string]any{"command": command}
	if headsetID != "" {
		params["headset"] = headsetID
	}
	if err := c.call(ctx, methodControlDevice, params, nil); err != nil {
		return classify(failure.Remote, methodControlDevice, err)
	}
	return nil
}

// CreateSession opens an active session on headsetID with the current token.
func (c *Client) CreateSession(ctx context.Context, headsetID string) (Session, error) {
	if err := c.require(methodCreateSession, failure.Session, StateAuthorized); err != nil {
		return Session{}, err
	}

	c.mu.Lock()
	token, live := c.token, c.session
	c.mu.Unlock()
	if live != nil {
		if live.HeadsetID == headsetID {
			return *live, nil
		}
		return Session{}, failure.New(failure.Session, methodCreateSession,
			"session "+live.ID+" already active on "+live.HeadsetID)
	}

	params := map[string]any{"cortexToken": token, "headset": headsetID, "status": "active"}
	var res sessionResult
	if err := c.call(ctx, methodCreateSession, params, &res); err != nil {
		return Session{}, classify(failure.Session, methodCreateSession, err)
	}
	if res.ID == "" {
		return Session{}, failure.New(failure.Session, methodCreateSession, "empty session id")
	}

	s := &Session{ID: res.ID, HeadsetID: headsetID, Token: token}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.advance(StateHeadsetSelected)
	c.advance(StateSessionActive)
	c.logger.Info("session created", zap.String("session", s.ID), zap.String("headset", headsetID))
	return *s, nil
}

// Subscribe requests live data streams on the current session.
func (c *Client) Subscribe(ctx context.Context, streams []string) (*Subscription, error) {
	if err := c.require(methodSubscribe, failure.Subscription, StateSessionActive); err != nil {
		return nil, err
	}
	if len(streams) == 0 {
		return nil, failure.New(failure.Subscription, methodSubscribe, "no streams requested")
	}

	c.mu.Lock()
	s := c.session
	inbox, done := c.inbox, c.done
	c.mu.Unlock()
	if s == nil {
		return nil, failure.New(failure.Subscription, methodSubscribe, "no live session")
	}
	if s.Subscription != nil {
		return s.Subscription, nil
	}

	params := map[string]any{"cortexToken": s.Token, "session": s.ID, "streams": streams}
	var res subscribeResult
	if err := c.call(ctx, methodSubscribe, params, &res); err != nil {
		return nil, classify(failure.Subscription, methodSubscribe, err)
	}
	if len(res.Failure) > 0 {
		f := res.Failure[0]
		return nil, &failure.Error{Kind: failure.Subscription, Op: methodSubscribe,
			Message: f.StreamName + ": " + f.Message, Code: f.Code}
	}
	if len(res.Success) == 0 {
		return nil, failure.New(failure.Subscription, methodSubscribe, "no stream subscribed")
	}

	sub := &Subscription{SID: res.Success[0].SID, Streams: res.Success, events: make(chan StreamEvent, streamBuffer)}
	if sub.SID == "" {
		sub.SID = s.ID
	}
	select {
	case inbox <- attachStream{sid: sub.SID, out: sub.events}:
	case <-done:
		return nil, failure.New(failure.Connection, methodSubscribe, "connection closed")
	}

	c.mu.Lock()
	if c.session == s {
		s.Subscription = sub
	}
	c.mu.Unlock()
	c.advance(StateSubscribed)
	return sub, nil
}

// StartRecord starts an on-device record titled label.
func (c *Client) StartRecord(ctx context.Context, sessionID, label string) (Record, error) {
	if err := c.require(methodCreateRecord, failure.RecordState, StateSessionActive); err != nil {
		return Record{}, err
	}

	c.mu.Lock()
	s, active := c.session, c.record
	c.mu.Unlock()
	switch {
	case s == nil || s.ID != sessionID:
		return Record{}, failure.New(failure.RecordState, methodCreateRecord, "unknown session "+sessionID)
	case active != nil:
		return Record{}, failure.New(failure.RecordState, methodCreateRecord, "record "+active.Label+" already active")
	}

	params := map[string]any{"cortexToken": s.Token, "session": s.ID, "title": label}
	if c.cfg.RecordDescription != "" {
		params["description"] = c.cfg.RecordDescription
	}
	var res recordResult
	if err := c.call(ctx, methodCreateRecord, params, &res); err != nil {
		return Record{}, classify(failure.RecordState, methodCreateRecord, err)
	}

	rec := Record{UUID: res.Record.UUID, Label: label, SessionID: s.ID, StartedAt: time.Now()}
	c.mu.Lock()
	c.record = &rec
	delete(c.stopped, label)
	c.mu.Unlock()
	c.advance(StateRecording)
	c.logger.Info("record started", zap.String("label", label), zap.String("record", rec.UUID))
	return rec, nil
}

// StopRecord stops the active record. Stopping a record that was already
// stopped is a no-op; stopping one that never started is a RecordState error.
func (c *Client) StopRecord(ctx context.Context, sessionID, label string) error {
	c.mu.Lock()
	s, active, wasStopped := c.session, c.record, c.stopped[label]
	c.mu.Unlock()

	if active == nil || active.Label != label || active.SessionID != sessionID {
		if wasStopped {
			c.logger.Warn("record already stopped", zap.String("label", label))
			return nil
		}
		return failure.New(failure.RecordState, methodStopRecord, "no active record "+label)
	}
	if err := c.require(methodStopRecord, failure.RecordState, StateSessionActive); err != nil {
		return err
	}

	params := map[string]any{"cortexToken": s.Token, "session": s.ID}
	if err := c.call(ctx, methodStopRecord, params, &recordResult{}); err != nil {
		return classify(failure.RecordState, methodStopRecord, err)
	}

	c.mu.Lock()
	c.record = nil
	c.stopped[label] = true
	if c.state == StateRecording {
		c.state = StateSessionActive
		if s.Subscription != nil {
			c.state = StateSubscribed
		}
	}
	c.mu.Unlock()
	c.logger.Info("record stopped", zap.String("label", label))
	return nil
}

// CloseSession releases the subscription and the session. It stops an active
// record first. Calling it without a session is a no-op. Local session state is
// cleared even when the device rejects a teardown call.
func (c *Client) CloseSession(ctx context.Context) error {
	c.mu.Lock()
	s, active := c.session, c.record
	inbox, done := c.inbox, c.done
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	var err error
	if active != nil {
		err = multierr.Append(err, c.StopRecord(ctx, active.SessionID, active.Label))
	}
	if sub := s.Subscription; sub != nil {
		params := map[string]any{"cortexToken": s.Token, "session": s.ID, "streams": sub.names()}
		err = multierr.Append(err, classify(failure.Subscription, methodUnsubscribe,
			c.call(ctx, methodUnsubscribe, params, nil)))
		select {
		case inbox <- detachStream{sid: sub.SID}:
		case <-done:
		}
	}
	params := map[string]any{"cortexToken": s.Token, "session": s.ID, "status": "close"}
	err = multierr.Append(err, classify(failure.Session, methodUpdateSession,
		c.call(ctx, methodUpdateSession, params, nil)))

	c.mu.Lock()
	if c.session == s {
		c.session = nil
		c.record = nil
		if c.conn != nil && c.state.Reached(StateAuthorized) {
			c.state = StateAuthorized
		}
	}
	c.mu.Unlock()
	c.logger.Info("session closed", zap.String("session", s.ID), zap.Error(err))
	return err
}

// Session returns the live session, if any.
func (c *Client) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}
