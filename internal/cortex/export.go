package cortex

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/DoyleJ11/eeg-stimulus/internal/failure"
)

// WarningPostProcessingDone is sent once a stopped record is ready for export.
const WarningPostProcessingDone = 30

const opPostProcessing = "record_post_processing"

type postProcessingMessage struct {
	RecordID string `json:"recordId"`
	Success  *bool  `json:"success,omitempty"`
}

type exportResult struct {
	Success []struct {
		RecordID string `json:"recordId"`
	} `json:"success"`
	Failure []struct {
		RecordID string `json:"recordId"`
		Code     int    `json:"code"`
		Message  string `json:"message"`
	} `json:"failure"`
}

// Waiter blocks until a device-side event arrives.
type Waiter interface {
	Wait(ctx context.Context) error
	Release()
}

// postProcessing waits for the post-processing warning of one record. It must
// be created before the record is stopped so the warning cannot be missed.
type postProcessing struct {
	recordID string
	events   chan Warning
	release  func()
	once     sync.Once
}

// ExpectPostProcessing starts listening for recordID's post-processing
// warning. Call Release when done with the handle.
func (c *Client) ExpectPostProcessing(recordID string) (Waiter, error) {
	c.mu.Lock()
	inbox, done := c.inbox, c.done
	c.mu.Unlock()
	if inbox == nil {
		return nil, failure.New(failure.Connection, opPostProcessing, "not connected")
	}

	events := make(chan Warning, 8)
	select {
	case inbox <- watchWarnings{out: events}:
	case <-done:
		return nil, failure.New(failure.Connection, opPostProcessing, "connection closed")
	}
	return &postProcessing{
		recordID: recordID,
		events:   events,
		release: func() {
			select {
			case inbox <- unwatchWarnings{out: events}:
			case <-done:
			}
		},
	}, nil
}

// Wait blocks until the record finished post-processing. A warning naming no
// record is taken to mean the current one.
func (p *postProcessing) Wait(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return failure.New(failure.Timeout, opPostProcessing, "record "+p.recordID+" was not post-processed in time")
			}
			return ctx.Err()

		case w, ok := <-p.events:
			if !ok {
				return failure.New(failure.Connection, opPostProcessing, "connection closed")
			}
			if w.Code != WarningPostProcessingDone {
				continue
			}
			var msg postProcessingMessage
			_ = json.Unmarshal(w.Message, &msg)
			if msg.RecordID != "" && msg.RecordID != p.recordID {
				continue
			}
			if msg.Success != nil && !*msg.Success {
				return failure.New(failure.Export, opPostProcessing, "post-processing of record "+p.recordID+" failed")
			}
			return nil
		}
	}
}

func (p *postProcessing) Release() {
	p.once.Do(p.release)
}

// ExportRecord writes recordIDs to folder on the machine running Cortex.
// version is only meaningful for CSV exports.
func (c *Client) ExportRecord(ctx context.Context, folder string, streamTypes []string, format string, recordIDs []string, version string) error {
	if err := c.require(methodExportRecord, failure.Export, StateAuthorized); err != nil {
		return err
	}
	switch {
	case strings.TrimSpace(folder) == "":
		return failure.New(failure.Export, methodExportRecord, "export folder is required")
	case len(recordIDs) == 0:
		return failure.New(failure.Export, methodExportRecord, "no record to export")
	case len(streamTypes) == 0:
		return failure.New(failure.Export, methodExportRecord, "no stream types to export")
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	params := map[string]any{
		"cortexToken": token,
		"folder":      folder,
		"streamTypes": streamTypes,
		"format":      format,
		"recordIds":   recordIDs,
	}
	if version != "" && strings.EqualFold(format, "CSV") {
		params["version"] = version
	}
	var res exportResult
	if err := c.call(ctx, methodExportRecord, params, &res); err != nil {
		return classify(failure.Export, methodExportRecord, err)
	}
	if len(res.Failure) > 0 {
		f := res.Failure[0]
		return &failure.Error{Kind: failure.Export, Op: methodExportRecord,
			Message: f.RecordID + ": " + f.Message, Code: f.Code}
	}
	c.logger.Info("record exported", zap.Strings("records", recordIDs), zap.String("folder", folder))
	return nil
}
