// Package logstore persists timestamped run log entries. SQLite is the
// default backend; a Postgres DSN selects the gorm backend.
package logstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/eeg-stimulus/internal/config"
)

var (
	ErrMissingRunID   = errors.New("log entry: run id is required")
	ErrMissingMessage = errors.New("log entry: message is required")
)

// Entry is one stored log line.
type Entry struct {
	ID          int64
	SubjectName string
	RunID       string
	Timestamp   time.Time
	Message     string
}

// Store appends and lists run logs. Implementations are safe for concurrent use.
type Store interface {
	Append(ctx context.Context, e Entry) error
	ListRun(ctx context.Context, runID string) ([]Entry, error)
	Close() error
}

// Open returns the store selected by cfg.
func Open(ctx context.Context, cfg config.Store, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dsn := strings.TrimSpace(cfg.PostgresDSN); dsn != "" {
		logger.Info("log store: postgres")
		return OpenGorm(ctx, dsn)
	}
	logger.Info("log store: sqlite", zap.String("path", cfg.SQLitePath))
	return OpenSQLite(ctx, cfg.SQLitePath)
}

func (e Entry) validate() error {
	if strings.TrimSpace(e.RunID) == "" {
		return ErrMissingRunID
	}
	if e.Message == "" {
		return ErrMissingMessage
	}
	return nil
}

func (e Entry) stamped() time.Time {
	if e.Timestamp.IsZero() {
		return time.Now().UTC()
	}
	return e.Timestamp.UTC()
}
