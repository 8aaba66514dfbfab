package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DoyleJ11/eeg-stimulus/internal/display"
)

func SetupRoutes(d Deps) http.Handler {
	d = d.withDefaults()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))
	r.Use(allowLocalOrigins)

	// Recording backend, called by the stimulus client
	r.Post("/save_log", SaveLog(d))
	r.Post("/start_recording", StartRecording(d))
	r.Post("/stop_recording", StopRecording(d))

	// In-process runs
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", LaunchRun(d))
		r.Get("/{runID}", RunStatus(d))
		r.Get("/{runID}/logs", RunLogs(d))
	})

	r.Get("/healthz", Healthz)
	if d.Hub != nil {
		r.Get("/ws/display", display.Handler(d.Hub, d.Logger))
	}
	return r
}
