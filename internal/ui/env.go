// Package ui renders analysis snapshots in the terminal: an interactive
// Bubble Tea view, a line-per-change plain printer, and JSON output.
package ui

// Env is the session context a view renders with. It is passed in
// explicitly rather than read from global state.
type Env struct {
	SignedIn bool   // a service token is available
	Operator string // label shown in the header, e.g. the OS user
}

// Header describes the run being watched.
type Header struct {
	Symbol  string
	Analyst string // display name of the selected analyst(s)
	Model   string
}

// NameFunc maps an agent ID to the name shown for it.
type NameFunc func(agentID string) string

func identity(id string) string { return id }

func (e Env) label() string {
	who := e.Operator
	if who == "" {
		who = "operator"
	}
	if !e.SignedIn {
		return who + " (no token)"
	}
	return who
}
