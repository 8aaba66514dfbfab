package logstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// dryRunDB builds statements without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=localhost user=eeg dbname=eeg sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func TestGorm_Statements(t *testing.T) {
	db := dryRunDB(t)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	insert := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		row := toRow(Entry{RunID: "1", SubjectName: "Test1", Timestamp: ts, Message: "hello"})
		return tx.Create(&row)
	})
	assert.Contains(t, insert, `INSERT INTO "log_entries"`)
	assert.Contains(t, insert, "'hello'")

	list := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []logRow
		return listQuery(tx, "1").Find(&rows)
	})
	assert.Contains(t, list, `FROM "log_entries" WHERE run_id = '1' ORDER BY id`)
}

func TestGorm_AppendValidates(t *testing.T) {
	g := &Gorm{db: dryRunDB(t)}
	require.ErrorIs(t, g.Append(t.Context(), Entry{Message: "x"}), ErrMissingRunID)
	require.NoError(t, g.Append(t.Context(), Entry{RunID: "1", Message: "x"}))
}
