// Package types holds the JSON bodies of the recording backend HTTP API.
package types

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// LogRequest is the body of POST /save_log. LogData is "[<timestamp>] <message>".
type LogRequest struct {
	SubjectName string `json:"subject_name"`
	RunID       string `json:"run_id"`
	LogData     string `json:"log_data"`
}

// StartRequest is the body of POST /start_recording. Delays are seconds.
type StartRequest struct {
	Duration        float64  `json:"duration,omitempty"`
	SubjectName     string   `json:"subject_name"`
	RunID           string   `json:"run_id"`
	Sequence        []string `json:"sequence"`
	CursorDelay     float64  `json:"cursor_delay"`
	WordDelay       float64  `json:"word_delay"`
	CommonEventTime string   `json:"common_event_time"`
}

// StopRequest is the body of POST /stop_recording.
type StopRequest struct {
	RunID       string `json:"run_id"`
	SubjectName string `json:"subject_name"`
}

// Result answers every backend call. Failures still use HTTP 200 with
// Status "error"; Kind carries the failure kind when one is known.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// LaunchRequest is the body of POST /runs. Durations are seconds.
type LaunchRequest struct {
	SubjectName    string  `json:"subject_name"`
	CursorDuration float64 `json:"cursor_duration"`
	WordDuration   float64 `json:"word_duration"`
	Repetitions    int     `json:"repetitions,omitempty"`
	Shuffle        string  `json:"shuffle,omitempty"`
}

type LaunchResponse struct {
	RunID string `json:"run_id"`
}

// RunStatus is the body of GET /runs/{runID}.
type RunStatus struct {
	RunID       string `json:"run_id"`
	SubjectName string `json:"subject_name"`
	State       string `json:"state"`
	Status      string `json:"status"`
	Done        bool   `json:"done"`
	Error       string `json:"error,omitempty"`
}

// LogLine is one entry of GET /runs/{runID}/logs.
type LogLine struct {
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}
