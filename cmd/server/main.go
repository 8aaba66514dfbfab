package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/eeg-stimulus/internal/config"
	"github.com/DoyleJ11/eeg-stimulus/internal/cortex"
	"github.com/DoyleJ11/eeg-stimulus/internal/display"
	"github.com/DoyleJ11/eeg-stimulus/internal/httpapi"
	"github.com/DoyleJ11/eeg-stimulus/internal/logging"
	"github.com/DoyleJ11/eeg-stimulus/internal/logsink"
	"github.com/DoyleJ11/eeg-stimulus/internal/logstore"
	"github.com/DoyleJ11/eeg-stimulus/internal/recording"
	"github.com/DoyleJ11/eeg-stimulus/internal/runs"
	"github.com/DoyleJ11/eeg-stimulus/internal/sequencer"
	"github.com/DoyleJ11/eeg-stimulus/internal/stimuli"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "eeg-stimulus server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	words, err := stimuli.Load(cfg.WordsFile)
	if err != nil {
		return err
	}

	store, err := logstore.Open(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close log store", zap.Error(err))
		}
	}()

	var logs logsink.Sink = logsink.StoreSink{Store: store}
	var queue *logsink.Queue
	if !cfg.InlineLogging {
		queue = logsink.NewQueue(logs, 0, logger)
		logs = queue
	}

	device := cortex.New(cortex.Config{
		URL:               cfg.Cortex.URL,
		ClientID:          cfg.Cortex.ClientID,
		ClientSecret:      cfg.Cortex.ClientSecret,
		License:           cfg.Cortex.License,
		Debit:             cfg.Cortex.Debit,
		HeadsetID:         cfg.Cortex.HeadsetID,
		InsecureTLS:       cfg.Cortex.InsecureTLS,
		RecordDescription: cfg.Cortex.RecordDescription,
		DialTimeout:       cfg.Cortex.DialTimeout,
		RequestTimeout:    cfg.Cortex.RequestTimeout,
		AccessTimeout:     cfg.Cortex.AccessTimeout,
		AccessInterval:    cfg.Cortex.AccessInterval,
	}, logger)
	defer func() { _ = device.Close() }()

	recorder := recording.New(device, recording.Options{
		Streams: cfg.Cortex.Streams,
		Export: recording.Export{
			Folder:      cfg.Cortex.ExportFolder,
			StreamTypes: cfg.Cortex.ExportStreams,
			Format:      strings.ToUpper(cfg.Cortex.ExportFormat),
			Version:     cfg.Cortex.ExportVersion,
			Timeout:     cfg.Cortex.ExportTimeout,
		},
		Logs:   logs,
		Logger: logger,
	})

	screen := display.NewHub(ctx, logger)
	registry := runs.NewRegistry(ctx)
	seq := sequencer.New(sequencer.Deps{
		Recorder:    recorder,
		Display:     screen,
		Logs:        logs,
		Status:      registry.SetStatus,
		Logger:      logger,
		SettleDelay: cfg.SettleDelay,
	})
	launcher := runs.NewLauncher(ctx, seq, registry, recorder, words, logger)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Recorder: recorder,
			Logs:     logs,
			Store:    store,
			Launcher: launcher,
			Hub:      screen,
			Logger:   logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		err := srv.Shutdown(sctx)
		// Runs stop their recordings on the live device and log through the
		// queue, so both stay open until the runs return.
		if werr := launcher.Wait(sctx); werr != nil {
			logger.Warn("runs still in flight at shutdown", zap.Error(werr))
		}
		if queue != nil {
			if qerr := queue.Close(sctx); qerr != nil {
				logger.Warn("drain log queue", zap.Error(qerr))
			}
		}
		return err
	})
	return g.Wait()
}
