package analysis

import (
	"log/slog"
	"math"

	"github.com/nextlevelbuilder/hedgewatch/internal/sse"
	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

// Outcome classifies what Dispatch did with a frame.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeProgress
	OutcomeResult
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProgress:
		return "progress"
	case OutcomeResult:
		return "result"
	default:
		return "ignored"
	}
}

// Dispatch routes a decoded frame to the reducer.
// Unknown events, non-object payloads, and progress updates without an
// agent are dropped without error.
func Dispatch(r *Reducer, f sse.Frame) Outcome {
	obj, ok := f.Object()

	switch f.Event {
	case protocol.EventProgress:
		if !ok {
			slog.Debug("analysis.frame_dropped", "event", f.Event, "reason", "payload not an object")
			return OutcomeIgnored
		}
		p, ok := progressFromObject(obj)
		if !ok {
			slog.Debug("analysis.frame_dropped", "event", f.Event, "reason", "missing agent")
			return OutcomeIgnored
		}
		if !r.Progress(p.Agent, p.Status, int(p.Progress)) {
			return OutcomeIgnored
		}
		return OutcomeProgress

	case protocol.EventResult:
		if !ok {
			slog.Debug("analysis.frame_dropped", "event", f.Event, "reason", "payload not an object")
			return OutcomeIgnored
		}
		if !r.Complete(Result(obj)) {
			return OutcomeIgnored
		}
		return OutcomeResult

	default:
		slog.Debug("analysis.frame_ignored", "event", f.Event)
		return OutcomeIgnored
	}
}

// progressFromObject reads a progress payload field by field so a wrongly
// typed optional field degrades to its default instead of dropping the update.
func progressFromObject(obj map[string]any) (protocol.ProgressPayload, bool) {
	var p protocol.ProgressPayload

	agent, _ := obj["agent"].(string)
	if agent == "" {
		return p, false
	}
	p.Agent = agent
	p.Status, _ = obj["status"].(string)
	if n, ok := obj["progress"].(float64); ok && !math.IsNaN(n) {
		p.Progress = math.Trunc(math.Max(0, math.Min(100, n)))
	}
	return p, true
}
