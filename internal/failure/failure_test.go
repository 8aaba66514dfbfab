package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKind(t *testing.T) {
	err := fmt.Errorf("start run: %w", New(HeadsetNotFound, "queryHeadsets", "no headset"))

	require.ErrorIs(t, err, HeadsetNotFound)
	assert.NotErrorIs(t, err, Session)
	assert.Equal(t, HeadsetNotFound, KindOf(err))
}

func TestMessage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "tagged with message", err: New(Remote, "start", "no headset"), want: "no headset"},
		{name: "tagged wraps cause", err: Wrap(Network, "post", errors.New("connection refused")), want: "connection refused"},
		{name: "tagged bare", err: &Error{Kind: Timeout}, want: "timeout"},
		{name: "plain", err: context.Canceled, want: "context canceled"},
		{name: "nil", err: nil, want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Message(tc.err))
		})
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: Auth, Op: "authorize", Message: "invalid client credentials", Code: -32021}
	assert.Equal(t, "authorize: auth: invalid client credentials (code -32021)", err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	assert.Nil(t, Wrap(Network, "post", nil))

	err := Wrap(Timeout, "createSession", context.DeadlineExceeded)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, Timeout)
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, HeadsetNotFound, ParseKind("headset_not_found", Remote))
	assert.Equal(t, Remote, ParseKind("something_else", Remote))
	assert.Equal(t, Remote, ParseKind("", Remote))
}
