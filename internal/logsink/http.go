package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DoyleJ11/eeg-stimulus/internal/failure"
	"github.com/DoyleJ11/eeg-stimulus/internal/types"
)

const opSaveLog = "save_log"

// HTTPSink posts entries to the backend's /save_log endpoint.
type HTTPSink struct {
	baseURL string
	client  *http.Client
}

// NewHTTP returns a sink for the backend at baseURL. A nil client gets a
// client with a 5 second timeout.
func NewHTTP(baseURL string, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPSink{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *HTTPSink) Log(ctx context.Context, e Entry) error {
	body, err := json.Marshal(types.LogRequest{SubjectName: e.SubjectName, RunID: e.RunID, LogData: e.Data()})
	if err != nil {
		return failure.Wrap(failure.Invalid, opSaveLog, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/save_log", bytes.NewReader(body))
	if err != nil {
		return failure.Wrap(failure.Invalid, opSaveLog, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return failure.Wrap(failure.Network, opSaveLog, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure.New(failure.Network, opSaveLog, fmt.Sprintf("backend answered %s", resp.Status))
	}
	return nil
}
