package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.HTTPAddr)
	assert.Equal(t, "wss://localhost:6868", cfg.Cortex.URL)
	assert.Equal(t, []string{"eeg"}, cfg.Cortex.Streams)
	assert.Equal(t, 10*time.Second, cfg.Cortex.RequestTimeout)
	assert.Equal(t, time.Second, cfg.SettleDelay)
	assert.False(t, cfg.InlineLogging)
	assert.Equal(t, "data_logs/logs.db", cfg.Store.SQLitePath)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{
		"EEG_HTTP_ADDR":              ":9000",
		"EEG_CORTEX_CLIENT_ID":       "abc",
		"EEG_CORTEX_STREAMS":         "eeg,mot",
		"EEG_CORTEX_REQUEST_TIMEOUT": "3s",
		"EEG_INLINE_LOGGING":         "true",
		"EEG_STORE_POSTGRES_DSN":     "postgres://localhost/eeg",
		"EEG_CORTEX_ACCESS_INTERVAL": "250ms",
	}})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "abc", cfg.Cortex.ClientID)
	assert.Equal(t, []string{"eeg", "mot"}, cfg.Cortex.Streams)
	assert.Equal(t, 3*time.Second, cfg.Cortex.RequestTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Cortex.AccessInterval)
	assert.True(t, cfg.InlineLogging)
	assert.Equal(t, "postgres://localhost/eeg", cfg.Store.PostgresDSN)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "bad duration", env: map[string]string{"EEG_SETTLE_DELAY": "soon"}, want: "parse env:"},
		{name: "zero timeout", env: map[string]string{"EEG_CORTEX_REQUEST_TIMEOUT": "0s"}, want: "timeouts must be positive"},
		{name: "negative settle", env: map[string]string{"EEG_SETTLE_DELAY": "-1s"}, want: "must not be negative"},
		{name: "bad export format", env: map[string]string{
			"EEG_CORTEX_EXPORT_FOLDER": "/data", "EEG_CORTEX_EXPORT_FORMAT": "xlsx",
		}, want: "must be CSV or EDF"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(env.Options{Environment: tc.env})
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tc.want), err.Error())
		})
	}
}

func TestParseExport(t *testing.T) {
	cfg, err := Parse(env.Options{Environment: map[string]string{}})
	require.NoError(t, err)
	assert.Empty(t, cfg.Cortex.ExportFolder)
	assert.Equal(t, []string{"EEG", "MOTION", "PM", "BP"}, cfg.Cortex.ExportStreams)
	assert.Equal(t, "CSV", cfg.Cortex.ExportFormat)
	assert.Equal(t, "V2", cfg.Cortex.ExportVersion)

	cfg, err = Parse(env.Options{Environment: map[string]string{
		"EEG_CORTEX_EXPORT_FOLDER":      "/data/exports",
		"EEG_CORTEX_EXPORT_STREAMS":     "EEG,BP",
		"EEG_CORTEX_EXPORT_TIMEOUT":     "1m",
		"EEG_CORTEX_RECORD_DESCRIPTION": "word pairs",
	}})
	require.NoError(t, err)
	assert.Equal(t, "/data/exports", cfg.Cortex.ExportFolder)
	assert.Equal(t, []string{"EEG", "BP"}, cfg.Cortex.ExportStreams)
	assert.Equal(t, time.Minute, cfg.Cortex.ExportTimeout)
	assert.Equal(t, "word pairs", cfg.Cortex.RecordDescription)
}

func TestLoadReadsDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("EEG_CORTEX_LICENSE=lic-123\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("EEG_CORTEX_LICENSE") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lic-123", cfg.Cortex.License)
}

func TestLoadToleratesMissingDotenv(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
}
