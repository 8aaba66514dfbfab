// Package backend is the HTTP client of the recording backend. It lets a
// sequencer run on another machine than the EEG device.
package backend

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
	"github.com/DoyleJ11/eeg-stimulus/internal/recording"
	"github.com/DoyleJ11/eeg-stimulus/internal/types"
)

const (
	opStart = "start_recording"
	opStop  = "stop_recording"
)

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for baseURL. A nil httpClient gets one with a
// timeout long enough for the device handshake.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 3 * time.Minute}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) StartRecording(ctx context.Context, req recording.StartRequest) error {
	body := types.StartRequest{
		Duration:        0,
		SubjectName:     req.SubjectName,
		RunID:           req.RunID,
		Sequence:        req.Sequence,
		CursorDelay:     req.CursorDelay.Seconds(),
		WordDelay:       req.WordDelay.Seconds(),
		CommonEventTime: req.CommonEventTime.UTC().Format(time.RFC3339Nano),
	}
	return c.post(ctx, opStart, "/start_recording", body)
}

func (c *Client) StopRecording(ctx context.Context, runID, subjectName string) error {
	return c.post(ctx, opStop, "/stop_recording", types.StopRequest{RunID: runID, SubjectName: subjectName})
}

func (c *Client) post(ctx context.Context, op, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return failure.Wrap(failure.Invalid, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return failure.Wrap(failure.Invalid, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return failure.Wrap(failure.Network, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return failure.Wrap(failure.Network, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failure.New(failure.Network, op, fmt.Sprintf("backend answered %s", resp.Status))
	}

	var res types.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return failure.Wrap(failure.Network, op, fmt.Errorf("decode response: %w", err))
	}
	if res.Status == types.StatusError {
		return failure.New(failure.ParseKind(res.Kind, failure.Remote), op, res.Message)
	}
	return nil
}
