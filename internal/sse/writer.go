package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// PrepareStream sets the event-stream response headers and returns the
// flusher, or an error when the ResponseWriter cannot stream.
func PrepareStream(w http.ResponseWriter) (http.Flusher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not implement http.Flusher")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, nil
}

// WriteEvent JSON-encodes data and writes one frame in the format
// ParseFrame reads. An empty event name omits the "event:" line.
func WriteEvent(w io.Writer, event string, data any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal sse data: %w", err)
	}
	if event != "" {
		if _, err := fmt.Fprintf(w, "event:%s\n", event); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data:%s\n\n", encoded)
	return err
}

// WriteAndFlush writes one frame and flushes it to the client.
func WriteAndFlush(w io.Writer, flusher http.Flusher, event string, data any) error {
	if err := WriteEvent(w, event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
