// Package types holds the wire shapes of the display websocket protocol.
//
// Server -> Viewer
// Frame:
//   version: number     // increments on every display change
//   frame: { text: string, color: string, visible: bool }
//
// Error:
//   error: string
package types

const (
	TypeFrame = "Frame"
	TypeError = "Error"
)

// Frame is what a viewer should currently show.
type Frame struct {
	Text    string `json:"text"`
	Color   string `json:"color"`
	Visible bool   `json:"visible"`
}

type ServerMessage struct {
	Type    string `json:"type"` // "Frame" | "Error"
	Version int    `json:"version,omitempty"`
	Frame   *Frame `json:"frame,omitempty"`
	Error   string `json:"error,omitempty"`
}
