// Package failure defines the error taxonomy shared by the device client,
// the recording controller and the sequencer.
//
// Every fatal condition travels as a *Error tagged with a Kind. Callers test
// for a kind with errors.Is(err, failure.HeadsetNotFound).
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure. A Kind is itself an error so it can be used as an
// errors.Is target.
type Kind string

const (
	Connection      Kind = "connection"
	Auth            Kind = "auth"
	AccessDenied    Kind = "access_denied"
	HeadsetNotFound Kind = "headset_not_found"
	Session         Kind = "session"
	Subscription    Kind = "subscription"
	RecordState     Kind = "record_state"
	DuplicateRun    Kind = "duplicate_run"
	Network         Kind = "network"
	Timeout         Kind = "timeout"
	Busy            Kind = "busy"
	Remote          Kind = "remote"
	Invalid         Kind = "invalid"
	Export          Kind = "export"
)

var known = map[Kind]struct{}{
	Connection: {}, Auth: {}, AccessDenied: {}, HeadsetNotFound: {},
	Session: {}, Subscription: {}, RecordState: {}, DuplicateRun: {},
	Network: {}, Timeout: {}, Busy: {}, Remote: {}, Invalid: {}, Export: {},
}

func (k Kind) Error() string { return string(k) }

// ParseKind maps a wire string back to a Kind. Unknown values yield fallback.
func ParseKind(s string, fallback Kind) Kind {
	k := Kind(strings.TrimSpace(s))
	if _, ok := known[k]; ok {
		return k
	}
	return fallback
}

// Error is a tagged failure: kind + operator-facing message, plus the
// operation that failed and an optional protocol error code.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if msg := e.text(); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Code)
	}
	return b.String()
}

func (e *Error) text() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's Kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns a failure of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when err
// carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}

// Message returns the text shown to the operator: the message of the first
// tagged failure in the chain, or err.Error() otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		if msg := fe.text(); msg != "" {
			return msg
		}
		return string(fe.Kind)
	}
	return err.Error()
}
