// Package protocol defines the wire formats hedgewatch speaks: the upstream
// analysis request/stream contract and the gateway's snapshot feed.
// This package is importable by other rendering clients.
package protocol

import "encoding/json"

// Protocol version of the gateway snapshot feed.
const ProtocolVersion = 1

// Frame types on the gateway WebSocket feed.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// RunRequest is the JSON body POSTed to the upstream analysis service.
type RunRequest struct {
	Tickers        []string `json:"tickers"`
	SelectedAgents []string `json:"selected_agents"`
	ModelName      string   `json:"model_name"`
	Crypto         bool     `json:"crypto"`
}

// ProgressPayload is the data of an upstream "progress" event.
// Agent is required; absent Status/Progress default to "" and 0.
type ProgressPayload struct {
	Agent    string  `json:"agent"`
	Status   string  `json:"status,omitempty"`
	Progress float64 `json:"progress,omitempty"`
}

// StartParams is the body of POST /v1/analysis on the gateway.
// Empty Agents/Model fall back to the configured defaults.
type StartParams struct {
	Symbol string   `json:"symbol"`
	Agents []string `json:"agents,omitempty"`
	Model  string   `json:"model,omitempty"`
}

// RequestFrame is sent by a WebSocket subscriber to control the gateway.
type RequestFrame struct {
	Type   string          `json:"type"` // always "req"
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame answers an HTTP control call or a WebSocket RequestFrame.
type ResponseFrame struct {
	Type    string      `json:"type"` // always "res"
	ID      string      `json:"id,omitempty"`
	OK      bool        `json:"ok"`
	Payload interface{} `json:"payload,omitempty"` // response data (when ok=true)
	Error   *ErrorShape `json:"error,omitempty"`   // error info (when ok=false)
}

// ErrorShape describes a protocol error.
type ErrorShape struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Retryable    bool   `json:"retryable,omitempty"`
	RetryAfterMs int    `json:"retryAfterMs,omitempty"`
}

// EventFrame is pushed from the gateway to subscribers without a preceding request.
type EventFrame struct {
	Type    string      `json:"type"`              // always "event"
	Event   string      `json:"event"`             // event name
	Payload interface{} `json:"payload,omitempty"` // event data
	Seq     int64       `json:"seq,omitempty"`     // ordering sequence number
	RunID   string      `json:"runId,omitempty"`
}

// NewOKResponse creates a success response frame.
func NewOKResponse(id string, payload interface{}) *ResponseFrame {
	return &ResponseFrame{
		Type:    FrameTypeResponse,
		ID:      id,
		OK:      true,
		Payload: payload,
	}
}

// NewErrorResponse creates an error response frame.
func NewErrorResponse(id string, code, message string) *ResponseFrame {
	return &ResponseFrame{
		Type: FrameTypeResponse,
		ID:   id,
		OK:   false,
		Error: &ErrorShape{
			Code:    code,
			Message: message,
		},
	}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload interface{}) *EventFrame {
	return &EventFrame{
		Type:    FrameTypeEvent,
		Event:   event,
		Payload: payload,
	}
}

// ParseFrameType extracts the frame type from raw JSON bytes.
func ParseFrameType(data []byte) (string, error) {
	var raw struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", err
	}
	return raw.Type, nil
}
