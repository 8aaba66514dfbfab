package logstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type logRow struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	RunID       string    `gorm:"index:idx_log_entries_run;not null"`
	SubjectName string    `gorm:"not null"`
	LoggedAt    time.Time `gorm:"not null"`
	Message     string    `gorm:"not null"`
}

func (logRow) TableName() string { return "log_entries" }

// Gorm stores entries in Postgres.
type Gorm struct {
	db *gorm.DB
}

// OpenGorm connects to dsn and migrates the log table.
func OpenGorm(ctx context.Context, dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&logRow{}); err != nil {
		return nil, fmt.Errorf("migrate log table: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Append(ctx context.Context, e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	row := toRow(e)
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	return nil
}

func (g *Gorm) ListRun(ctx context.Context, runID string) ([]Entry, error) {
	var rows []logRow
	if err := listQuery(g.db.WithContext(ctx), runID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{ID: r.ID, RunID: r.RunID, SubjectName: r.SubjectName,
			Timestamp: r.LoggedAt.UTC(), Message: r.Message})
	}
	return out, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(e Entry) logRow {
	return logRow{RunID: e.RunID, SubjectName: e.SubjectName, LoggedAt: e.stamped(), Message: e.Message}
}

func listQuery(tx *gorm.DB, runID string) *gorm.DB {
	return tx.Model(&logRow{}).Where("run_id = ?", runID).Order("id")
}
