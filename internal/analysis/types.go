// Package analysis drives one streaming analysis request: it opens the
// upstream event stream, decodes it, and reduces per-agent progress into an
// ordered status list that ends in a result or an error.
package analysis

import (
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

// State is the lifecycle state of a session.
// Completed and Failed are terminal.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return protocol.StateIdle
	case StateStreaming:
		return protocol.StateStreaming
	case StateCompleted:
		return protocol.StateCompleted
	case StateFailed:
		return protocol.StateFailed
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case protocol.StateIdle:
		*s = StateIdle
	case protocol.StateStreaming:
		*s = StateStreaming
	case protocol.StateCompleted:
		*s = StateCompleted
	case protocol.StateFailed:
		*s = StateFailed
	default:
		return fmt.Errorf("unknown session state %q", b)
	}
	return nil
}

// AgentStatus is the progress of one analysis agent. AgentID is unique
// within a session.
type AgentStatus struct {
	AgentID    string `json:"agent"`
	StatusText string `json:"status"`
	Progress   int    `json:"progress"`
	IsComplete bool   `json:"isComplete"`
}

// Result is the opaque final payload of an analysis.
type Result map[string]any

// Snapshot is a consistent, immutable view of a session for rendering.
type Snapshot struct {
	RunID     string        `json:"runId,omitempty"`
	State     State         `json:"state"`
	IsLoading bool          `json:"isLoading"`
	Agents    []AgentStatus `json:"agentStatuses"`
	Result    Result        `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	Frames    int           `json:"frames"`
}

// Request describes one analysis run.
type Request struct {
	Symbol string
	Agents []string
	Model  string
}

// Validate checks the request has everything the upstream requires.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("symbol is required")
	}
	if len(r.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	for _, a := range r.Agents {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("agent names must not be empty")
		}
	}
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}
