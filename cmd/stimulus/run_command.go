package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/eeg-stimulus/internal/backend"
	"github.com/DoyleJ11/eeg-stimulus/internal/display"
	"github.com/DoyleJ11/eeg-stimulus/internal/logging"
	"github.com/DoyleJ11/eeg-stimulus/internal/logsink"
	"github.com/DoyleJ11/eeg-stimulus/internal/sequencer"
)

func newRunCommand() *cobra.Command {
	var flags runFlags
	var backendURL string
	var inline bool
	var lockPath string
	var logLevel string
	var width int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a recording and present the stimulus sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.config()
			if err != nil {
				return err
			}
			logger, err := logging.New(logLevel, "console")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			lock := flock.New(lockPath)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another stimulus run holds %s", lockPath)
			}
			defer func() { _ = lock.Unlock() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var logs logsink.Sink = logsink.NewHTTP(backendURL, &http.Client{Timeout: 10 * time.Second})
			var queue *logsink.Queue
			if !inline {
				queue = logsink.NewQueue(logs, 0, logger)
				logs = queue
			}

			out := cmd.OutOrStdout()
			seq := sequencer.New(sequencer.Deps{
				Recorder: backend.New(backendURL, nil),
				Display:  display.NewTerminal(out, width),
				Logs:     logs,
				Logger:   logger,
				Status: func(runID, status string) {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", runID, status)
				},
			})
			res := seq.Run(ctx, cfg)

			if queue != nil {
				dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
				defer cancel()
				if err := queue.Close(dctx); err != nil {
					logger.Warn("log queue not drained", zap.Error(err))
				}
			}
			if res.Err != nil {
				return res.Err
			}
			fmt.Fprintf(out, "run %s: %s (%d phases in %s)\n", res.RunID, res.Status, res.Phases,
				res.Finished.Sub(res.Started).Round(time.Millisecond))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&backendURL, "backend", "http://127.0.0.1:8000", "Recording backend base URL")
	cmd.Flags().BoolVar(&inline, "inline-logging", false, "Wait for every log line to reach the backend")
	cmd.Flags().StringVar(&lockPath, "lock", filepath.Join(os.TempDir(), "eeg-stimulus.lock"), "Lock file guarding against concurrent runs")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	cmd.Flags().IntVar(&width, "width", 40, "Display width in columns")
	return cmd
}
