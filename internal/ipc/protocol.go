package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/1broseidon/taskpanel/internal/taskpanel"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandReload            CommandType = "RELOAD"
	CommandGetStatus         CommandType = "GET_STATUS"
	CommandSetShowingDesktop CommandType = "SET_SHOWING_DESKTOP"
	CommandCloseActiveWindow CommandType = "CLOSE_ACTIVE_WINDOW"
	CommandSetPanel          CommandType = "SET_PANEL"
)

// Showing-desktop modes accepted by SET_SHOWING_DESKTOP.
const (
	ModeOn     = "on"
	ModeOff    = "off"
	ModeToggle = "toggle"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	taskpanel.Status
	UptimeSeconds int64 `json:"uptime_seconds"`
	DaemonRunning bool  `json:"daemon_running"`
}

type ShowingDesktopPayload struct {
	Mode string `json:"mode"`
}

// ShowingDesktopData reports the value that was requested. The confirmed state arrives
// later through GET_STATUS.
type ShowingDesktopData struct {
	Requested bool `json:"requested"`
}

type SetPanelPayload struct {
	WindowID uint32 `json:"window_id"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
