package cortex

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Cortex JSON-RPC method names.
const (
	methodRequestAccess = "requestAccess"
	methodAuthorize     = "authorize"
	methodQueryHeadsets = "queryHeadsets"
	methodControlDevice = "controlDevice"
	methodCreateSession = "createSession"
	methodUpdateSession = "updateSession"
	methodSubscribe     = "subscribe"
	methodUnsubscribe   = "unsubscribe"
	methodCreateRecord  = "createRecord"
	methodStopRecord    = "stopRecord"
	methodExportRecord  = "exportRecord"
)

// Headset connection states reported by queryHeadsets.
const (
	HeadsetConnected  = "connected"
	HeadsetConnecting = "connecting"
	HeadsetDiscovered = "discovered"
)

// controlDevice commands.
const (
	CommandRefresh    = "refresh"
	CommandConnect    = "connect"
	CommandDisconnect = "disconnect"
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// RPCError is the error object of a Cortex response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("cortex error %d: %s", e.Code, e.Message) }

// frame is one decoded inbound message. Responses carry an id; stream data and
// warnings do not.
type frame struct {
	hasID   bool
	id      uint64
	result  json.RawMessage
	err     *RPCError
	sid     string
	time    float64
	streams map[string]json.RawMessage
	warning *Warning
}

// Warning is an unsolicited Cortex notice (headset disconnected, record
// post-processing done, ...).
type Warning struct {
	Code    int             `json:"code"`
	Message json.RawMessage `json:"message"`
}

// StreamEvent is one sample frame of a subscribed stream.
type StreamEvent struct {
	SID    string
	Stream string
	Time   float64
	Data   json.RawMessage
}

func decodeFrame(data []byte) (frame, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}

	var f frame
	if rawID, ok := raw["id"]; ok && string(rawID) != "null" {
		id, err := parseID(rawID)
		if err != nil {
			return frame{}, err
		}
		f.hasID = true
		f.id = id
		f.result = raw["result"]
		if rawErr, ok := raw["error"]; ok && string(rawErr) != "null" {
			f.err = &RPCError{}
			if err := json.Unmarshal(rawErr, f.err); err != nil {
				return frame{}, fmt.Errorf("decode error object: %w", err)
			}
		}
		return f, nil
	}

	if rawWarn, ok := raw["warning"]; ok {
		f.warning = &Warning{}
		if err := json.Unmarshal(rawWarn, f.warning); err != nil {
			return frame{}, fmt.Errorf("decode warning: %w", err)
		}
		return f, nil
	}

	if rawSID, ok := raw["sid"]; ok {
		if err := json.Unmarshal(rawSID, &f.sid); err != nil {
			return frame{}, fmt.Errorf("decode sid: %w", err)
		}
	}
	if rawTime, ok := raw["time"]; ok {
		_ = json.Unmarshal(rawTime, &f.time)
	}
	for key, value := range raw {
		switch key {
		case "sid", "time", "jsonrpc":
			continue
		}
		if f.streams == nil {
			f.streams = make(map[string]json.RawMessage)
		}
		f.streams[key] = value
	}
	return f, nil
}

// parseID accepts numeric ids and numeric strings. Anything else is an id this
// client never issued.
func parseID(raw json.RawMessage) (uint64, error) {
	var n uint64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("decode frame: unsupported id %s", raw)
}

// Headset is one entry of queryHeadsets.
type Headset struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	ConnectedBy string `json:"connectedBy,omitempty"`
	Firmware    string `json:"firmware,omitempty"`
}

// Session is the live device session. It exists only between a successful
// createSession and closeSession.
type Session struct {
	ID           string
	HeadsetID    string
	Token        string
	Subscription *Subscription
}

// Record is an on-device recording started by createRecord.
type Record struct {
	UUID      string
	Label     string
	SessionID string
	StartedAt time.Time
}

// StreamInfo describes a successfully subscribed stream.
type StreamInfo struct {
	Name string   `json:"streamName"`
	Cols []string `json:"cols"`
	SID  string   `json:"sid"`
}

// Subscription is the handle to live stream frames. Events is closed when the
// subscription is released or the socket drops.
type Subscription struct {
	SID     string
	Streams []StreamInfo
	events  chan StreamEvent
}

func (s *Subscription) Events() <-chan StreamEvent { return s.events }

func (s *Subscription) names() []string {
	out := make([]string, 0, len(s.Streams))
	for _, st := range s.Streams {
		out = append(out, st.Name)
	}
	return out
}

type accessResult struct {
	AccessGranted bool   `json:"accessGranted"`
	Message       string `json:"message"`
}

type authorizeResult struct {
	CortexToken string `json:"cortexToken"`
}

type sessionResult struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Headset struct {
		ID string `json:"id"`
	} `json:"headset"`
}

type subscribeResult struct {
	Success []StreamInfo `json:"success"`
	Failure []struct {
		StreamName string `json:"streamName"`
		Code       int    `json:"code"`
		Message    string `json:"message"`
	} `json:"failure"`
}

type recordResult struct {
	Record struct {
		UUID          string `json:"uuid"`
		Title         string `json:"title"`
		StartDatetime string `json:"startDatetime"`
	} `json:"record"`
	SessionID string `json:"sessionId"`
}
