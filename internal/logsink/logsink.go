// Package logsink delivers timestamped run log entries: over HTTP to the
// recording backend, straight into a log store, or through an ordered
// asynchronous queue in front of either.
package logsink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DoyleJ11/eeg-stimulus/internal/logstore"
)

// TimestampLayout is the wire timestamp: RFC 3339, UTC, millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Entry is one log line of a run.
type Entry struct {
	Timestamp   time.Time
	SubjectName string
	RunID       string
	Message     string
}

// Data renders the wire form "[<timestamp>] <message>".
func (e Entry) Data() string {
	return "[" + e.Timestamp.UTC().Format(TimestampLayout) + "] " + e.Message
}

// ParseData splits a wire log line back into timestamp and message. Lines
// without a parseable stamp keep their full text and report false.
func ParseData(data string) (time.Time, string, bool) {
	if !strings.HasPrefix(data, "[") {
		return time.Time{}, data, false
	}
	end := strings.Index(data, "] ")
	if end < 0 {
		return time.Time{}, data, false
	}
	ts, err := time.Parse(time.RFC3339Nano, data[1:end])
	if err != nil {
		return time.Time{}, data, false
	}
	return ts.UTC(), data[end+2:], true
}

// Sink accepts log entries.
type Sink interface {
	Log(ctx context.Context, e Entry) error
}

// Func adapts a function to Sink.
type Func func(ctx context.Context, e Entry) error

func (f Func) Log(ctx context.Context, e Entry) error { return f(ctx, e) }

// Discard drops every entry.
var Discard Sink = Func(func(context.Context, Entry) error { return nil })

// StoreSink writes entries into a log store.
type StoreSink struct {
	Store logstore.Store
}

func (s StoreSink) Log(ctx context.Context, e Entry) error {
	err := s.Store.Append(ctx, logstore.Entry{
		SubjectName: e.SubjectName,
		RunID:       e.RunID,
		Timestamp:   e.Timestamp,
		Message:     e.Message,
	})
	if err != nil {
		return fmt.Errorf("store log entry: %w", err)
	}
	return nil
}
