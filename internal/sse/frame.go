package sse

import (
	"encoding/json"
	"strings"
)

// DefaultEvent is the event name of a frame without an "event:" line.
const DefaultEvent = "message"

const (
	eventPrefix = "event:"
	dataPrefix  = "data:"
)

// Frame is one decoded event. Data holds the JSON-decoded payload, or the
// raw data text verbatim when it is not valid JSON. Data is nil when the
// frame has no data line.
type Frame struct {
	Event string
	Data  any
	Raw   string
}

// Object returns Data as a JSON object, if it is one.
func (f Frame) Object() (map[string]any, bool) {
	m, ok := f.Data.(map[string]any)
	return m, ok && m != nil
}

// ParseFrame interprets the text of a single frame.
// The last "data:" line wins; multi-line payloads are not concatenated.
// Lines with any other prefix are ignored.
func ParseFrame(text string) Frame {
	f := Frame{Event: DefaultEvent}
	hasData := false

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, eventPrefix):
			f.Event = strings.TrimSpace(line[len(eventPrefix):])
		case strings.HasPrefix(line, dataPrefix):
			f.Raw = line[len(dataPrefix):]
			hasData = true
		}
	}

	if hasData {
		f.Data = decodePayload(f.Raw)
	}
	return f
}

// decodePayload parses raw as JSON, falling back to the raw text.
func decodePayload(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
