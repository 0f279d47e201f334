package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// ErrEmptyBody is returned when the upstream responds without a body.
var ErrEmptyBody = errors.New("analysis response has no body")

// ErrSessionStarted is returned when Run is called on a session twice.
var ErrSessionStarted = errors.New("analysis session already started")

// RequestError reports a non-successful upstream response.
type RequestError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("analysis request failed: %s", e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// StreamError reports an abnormal end of the event stream after it began.
type StreamError struct {
	Frames int // frames processed before the failure
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("analysis stream interrupted after %d frames: %v", e.Frames, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Describe turns an analysis error into a short human-readable message.
// Raw upstream payloads are never shown; unclassified errors are logged.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return "Analysis cancelled."
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Analysis timed out. Please try again."
	}
	if errors.Is(err, ErrEmptyBody) {
		return "The analysis service returned an empty response."
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.StatusCode == http.StatusUnauthorized || reqErr.StatusCode == http.StatusForbidden:
			return "Authentication error. Please check your service token."
		case reqErr.StatusCode == http.StatusTooManyRequests:
			return "The analysis service is rate limiting requests. Please try again later."
		case reqErr.StatusCode == http.StatusNotFound:
			return "Analysis endpoint not found. Please check service.baseUrl and service.runPath."
		case reqErr.StatusCode == http.StatusBadRequest || reqErr.StatusCode == http.StatusUnprocessableEntity:
			return "The analysis service rejected the request (" + reqErr.Status + ")."
		case reqErr.StatusCode >= 500:
			return "The analysis service is unavailable (" + reqErr.Status + ")."
		default:
			return "Analysis request failed (" + reqErr.Status + ")."
		}
	}

	lower := strings.ToLower(err.Error())

	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		if containsAny(lower, "timeout", "timed out", "deadline exceeded") {
			return "The analysis stream timed out. Partial progress is shown."
		}
		return "The analysis stream was interrupted. Partial progress is shown."
	}

	if containsAny(lower, "connection refused", "no such host", "dial tcp") {
		return "Cannot reach the analysis service. Please check service.baseUrl."
	}
	if containsAny(lower, "timeout", "timed out", "deadline exceeded") {
		return "Analysis timed out. Please try again."
	}

	slog.Warn("analysis.unclassified_error", "error", err)
	return "Analysis failed: " + err.Error()
}

// containsAny returns true if s contains any of the given substrings.
func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
