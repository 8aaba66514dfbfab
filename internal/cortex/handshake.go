package cortex

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/eeg-stimulus/internal/failure"
)

var errAwaitingApproval = errors.New("access awaiting approval in launcher")

// WaitForAccess polls requestAccess until the launcher grants access. Polls
// back off exponentially from AccessInterval; the wait gives up after
// AccessTimeout with an AccessDenied failure.
func (c *Client) WaitForAccess(ctx context.Context) error {
	if c.State().Reached(StateAccessRequested) {
		return nil
	}

	accessCtx, cancel := context.WithTimeout(ctx, c.cfg.AccessTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.AccessInterval
	policy.MaxInterval = 10 * c.cfg.AccessInterval
	policy.Multiplier = 1.5

	attempt := 0
	_, err := backoff.Retry(accessCtx, func() (bool, error) {
		attempt++
		granted, err := c.RequestAccess(accessCtx)
		if err != nil {
			return false, backoff.Permanent(err)
		}
		if !granted {
			return false, errAwaitingApproval
		}
		return true, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(c.cfg.AccessTimeout),
		backoff.WithNotify(func(_ error, next time.Duration) {
			c.logger.Info("waiting for access approval in the launcher",
				zap.Int("attempt", attempt), zap.Duration("next_poll", next))
		}),
	)
	if err == nil {
		c.logger.Info("access granted", zap.Int("attempts", attempt))
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, errAwaitingApproval) || accessCtx.Err() != nil {
		return &failure.Error{Kind: failure.AccessDenied, Op: methodRequestAccess,
			Message: "access not approved in launcher within " + c.cfg.AccessTimeout.String()}
	}
	return err
}

// Handshake drives the client from wherever it is to a live, subscribed
// session and returns it. A live session is reused. Any failing stage stops
// the handshake in place; nothing is retried.
func (c *Client) Handshake(ctx context.Context, streams []string) (Session, error) {
	if s, ok := c.Session(); ok {
		return s, nil
	}

	if err := c.Connect(ctx); err != nil {
		return Session{}, err
	}
	if err := c.WaitForAccess(ctx); err != nil {
		return Session{}, err
	}
	if !c.State().Reached(StateAuthorized) {
		if _, err := c.Authorize(ctx); err != nil {
			return Session{}, err
		}
	}

	headset, err := c.selectHeadset(ctx)
	if err != nil {
		return Session{}, err
	}

	if headset.Status != HeadsetConnected {
		if err := c.ControlDevice(ctx, CommandConnect, headset.ID); err != nil {
			c.logger.Warn("connect command rejected", zap.String("headset", headset.ID), zap.Error(err))
		}
	}

	s, err := c.CreateSession(ctx, headset.ID)
	if err != nil {
		return Session{}, err
	}
	if len(streams) > 0 {
		sub, err := c.Subscribe(ctx, streams)
		if err != nil {
			return Session{}, err
		}
		s.Subscription = sub
	}
	return s, nil
}

func (c *Client) selectHeadset(ctx context.Context) (Headset, error) {
	headsets, err := c.QueryHeadsets(ctx)
	if err != nil {
		return Headset{}, err
	}
	for _, h := range headsets {
		if c.cfg.HeadsetID == "" || h.ID == c.cfg.HeadsetID {
			c.advance(StateHeadsetSelected)
			c.logger.Info("headset selected", zap.String("headset", h.ID), zap.String("status", h.Status))
			return h, nil
		}
	}
	msg := "no headset"
	if c.cfg.HeadsetID != "" {
		msg = "headset " + c.cfg.HeadsetID + " not found"
	}
	return Headset{}, failure.New(failure.HeadsetNotFound, methodQueryHeadsets, msg)
}
