// Package config loads process configuration from the environment. A .env
// file in the working directory, when present, is applied first; variables
// already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Cortex holds the device protocol connection settings.
type Cortex struct {
	URL            string        `env:"URL" envDefault:"wss://localhost:6868"`
	ClientID       string        `env:"CLIENT_ID"`
	ClientSecret   string        `env:"CLIENT_SECRET"`
	License        string        `env:"LICENSE"`
	Debit          int           `env:"DEBIT" envDefault:"1"`
	HeadsetID      string        `env:"HEADSET_ID"`
	Streams        []string      `env:"STREAMS" envDefault:"eeg"`
	InsecureTLS    bool          `env:"INSECURE_TLS" envDefault:"true"`
	DialTimeout    time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	AccessTimeout  time.Duration `env:"ACCESS_TIMEOUT" envDefault:"2m"`
	AccessInterval time.Duration `env:"ACCESS_INTERVAL" envDefault:"1s"`

	RecordDescription string `env:"RECORD_DESCRIPTION"`

	// Records are exported after post-processing when ExportFolder is set.
	ExportFolder  string        `env:"EXPORT_FOLDER"`
	ExportStreams []string      `env:"EXPORT_STREAMS" envDefault:"EEG,MOTION,PM,BP"`
	ExportFormat  string        `env:"EXPORT_FORMAT" envDefault:"CSV"`
	ExportVersion string        `env:"EXPORT_VERSION" envDefault:"V2"`
	ExportTimeout time.Duration `env:"EXPORT_TIMEOUT" envDefault:"30s"`
}

// Store selects the log store backend. An empty PostgresDSN selects SQLite.
type Store struct {
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data_logs/logs.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`
}

// Config is the recording backend configuration.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:"127.0.0.1:8000"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
	WordsFile string `env:"WORDS_FILE"`

	InlineLogging bool          `env:"INLINE_LOGGING" envDefault:"false"`
	SettleDelay   time.Duration `env:"SETTLE_DELAY" envDefault:"1s"`

	Cortex Cortex `envPrefix:"CORTEX_"`
	Store  Store  `envPrefix:"STORE_"`
}

const Prefix = "EEG_"

// Load applies the optional .env files and parses the environment.
func Load(dotenv ...string) (Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	return Parse(env.Options{Prefix: Prefix})
}

// Parse reads a Config using opts. Tests pass opts.Environment to avoid
// touching the process environment.
func Parse(opts env.Options) (Config, error) {
	if opts.Prefix == "" {
		opts.Prefix = Prefix
	}
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR is required")
	}
	if c.Cortex.URL == "" {
		return errors.New("config: CORTEX_URL is required")
	}
	if c.Cortex.RequestTimeout <= 0 || c.Cortex.DialTimeout <= 0 {
		return errors.New("config: cortex timeouts must be positive")
	}
	if c.Cortex.ExportFolder != "" {
		switch strings.ToUpper(c.Cortex.ExportFormat) {
		case "CSV", "EDF":
		default:
			return fmt.Errorf("config: CORTEX_EXPORT_FORMAT %q must be CSV or EDF", c.Cortex.ExportFormat)
		}
		if len(c.Cortex.ExportStreams) == 0 {
			return errors.New("config: CORTEX_EXPORT_STREAMS must not be empty")
		}
	}
	if c.SettleDelay < 0 {
		return errors.New("config: SETTLE_DELAY must not be negative")
	}
	if c.Store.PostgresDSN == "" && c.Store.SQLitePath == "" {
		return errors.New("config: one of STORE_SQLITE_PATH or STORE_POSTGRES_DSN is required")
	}
	return nil
}
