// Package httpapi serves the recording backend: log intake, recording
// start/stop, in-process runs and the display websocket.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/eeg-stimulus/internal/display"
	"github.com/DoyleJ11/eeg-stimulus/internal/failure"
	"github.com/DoyleJ11/eeg-stimulus/internal/logsink"
	"github.com/DoyleJ11/eeg-stimulus/internal/logstore"
	"github.com/DoyleJ11/eeg-stimulus/internal/recording"
	"github.com/DoyleJ11/eeg-stimulus/internal/types"
)

// Recorder is the recording controller as seen by the handlers.
type Recorder interface {
	StartRecording(ctx context.Context, req recording.StartRequest) error
	StopRecording(ctx context.Context, runID, subjectName string) error
}

// Launcher starts and reports in-process runs.
type Launcher interface {
	Launch(ctx context.Context, req types.LaunchRequest) (string, error)
	Status(ctx context.Context, runID string) (types.RunStatus, bool, error)
}

type Deps struct {
	Recorder Recorder
	Logs     logsink.Sink
	Store    logstore.Store
	Launcher Launcher
	Hub      *display.Hub
	Logger   *zap.Logger
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logs == nil {
		d.Logs = logsink.Discard
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

const maxBody = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, types.Result{Status: types.StatusError, Message: "bad json: " + err.Error(), Kind: string(failure.Invalid)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResult answers a failed backend call. Backend calls keep HTTP 200 and
// report the failure in the body.
func errorResult(err error) types.Result {
	return types.Result{Status: types.StatusError, Message: failure.Message(err), Kind: string(failure.KindOf(err))}
}

// SaveLog stores one run log line. Lines without a timestamp prefix are
// stamped with the arrival time.
func SaveLog(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.LogRequest
		if !decode(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.RunID) == "" || req.LogData == "" {
			writeJSON(w, http.StatusBadRequest, types.Result{Status: types.StatusError,
				Message: "run_id and log_data are required", Kind: string(failure.Invalid)})
			return
		}

		ts, msg, ok := logsink.ParseData(req.LogData)
		if !ok {
			ts = d.Now()
		}
		entry := logsink.Entry{Timestamp: ts, SubjectName: req.SubjectName, RunID: req.RunID, Message: msg}
		if err := d.Logs.Log(r.Context(), entry); err != nil {
			d.Logger.Warn("save_log failed", zap.String("run_id", req.RunID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResult(err))
			return
		}
		writeJSON(w, http.StatusOK, types.Result{Status: types.StatusOK, Message: "Log saved"})
	}
}

func StartRecording(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.StartRequest
		if !decode(w, r, &req) {
			return
		}
		var commonEvent time.Time
		if req.CommonEventTime != "" {
			ts, err := time.Parse(time.RFC3339Nano, req.CommonEventTime)
			if err != nil {
				writeJSON(w, http.StatusOK, errorResult(failure.New(failure.Invalid, "start_recording",
					"common_event_time must be RFC 3339")))
				return
			}
			commonEvent = ts
		}

		err := d.Recorder.StartRecording(r.Context(), recording.StartRequest{
			SubjectName:     req.SubjectName,
			RunID:           req.RunID,
			Sequence:        req.Sequence,
			CursorDelay:     time.Duration(req.CursorDelay * float64(time.Second)),
			WordDelay:       time.Duration(req.WordDelay * float64(time.Second)),
			CommonEventTime: commonEvent,
		})
		if err != nil {
			d.Logger.Warn("start_recording failed", zap.String("run_id", req.RunID), zap.Error(err))
			writeJSON(w, http.StatusOK, errorResult(err))
			return
		}
		writeJSON(w, http.StatusOK, types.Result{Status: types.StatusOK, Message: "Recording started"})
	}
}

func StopRecording(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.StopRequest
		if !decode(w, r, &req) {
			return
		}
		if err := d.Recorder.StopRecording(r.Context(), req.RunID, req.SubjectName); err != nil {
			d.Logger.Warn("stop_recording failed", zap.String("run_id", req.RunID), zap.Error(err))
			writeJSON(w, http.StatusOK, errorResult(err))
			return
		}
		writeJSON(w, http.StatusOK, types.Result{Status: types.StatusOK, Message: "Recording stopped"})
	}
}

func LaunchRun(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Launcher == nil {
			http.Error(w, "runs are not enabled", http.StatusNotImplemented)
			return
		}
		var req types.LaunchRequest
		if !decode(w, r, &req) {
			return
		}
		runID, err := d.Launcher.Launch(r.Context(), req)
		if err != nil {
			writeJSON(w, statusFor(err), errorResult(err))
			return
		}
		writeJSON(w, http.StatusAccepted, types.LaunchResponse{RunID: runID})
	}
}

func RunStatus(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Launcher == nil {
			http.Error(w, "runs are not enabled", http.StatusNotImplemented)
			return
		}
		runID := chi.URLParam(r, "runID")
		st, ok, err := d.Launcher.Status(r.Context(), runID)
		switch {
		case err != nil:
			writeJSON(w, http.StatusServiceUnavailable, errorResult(err))
		case !ok:
			http.Error(w, "run not found", http.StatusNotFound)
		default:
			writeJSON(w, http.StatusOK, st)
		}
	}
}

func RunLogs(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			http.Error(w, "log store is not configured", http.StatusNotImplemented)
			return
		}
		entries, err := d.Store.ListRun(r.Context(), chi.URLParam(r, "runID"))
		if err != nil {
			d.Logger.Warn("list run logs failed", zap.Error(err))
			http.Error(w, "failed to list logs", http.StatusInternalServerError)
			return
		}
		out := make([]types.LogLine, 0, len(entries))
		for _, e := range entries {
			out = append(out, types.LogLine{Timestamp: e.Timestamp.UTC().Format(logsink.TimestampLayout), Message: e.Message})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func statusFor(err error) int {
	switch failure.KindOf(err) {
	case failure.Invalid:
		return http.StatusBadRequest
	case failure.Busy, failure.DuplicateRun:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

// allowLocalOrigins lets the browser stimulus page on another local port call
// the backend.
func allowLocalOrigins(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
