package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"cancelled", fmt.Errorf("wrapped: %w", context.Canceled), "cancelled"},
		{"deadline", context.DeadlineExceeded, "timed out"},
		{"empty body", ErrEmptyBody, "empty response"},
		{"unauthorized", &RequestError{StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"}, "Authentication"},
		{"rate limited", &RequestError{StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests"}, "rate limiting"},
		{"not found", &RequestError{StatusCode: http.StatusNotFound, Status: "404 Not Found"}, "not found"},
		{"server error", &RequestError{StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"}, "unavailable"},
		{"stream reset", &StreamError{Frames: 3, Err: errors.New("connection reset")}, "interrupted"},
		{"stream timeout", &StreamError{Frames: 3, Err: errors.New("i/o timeout")}, "stream timed out"},
		{"refused", errors.New("dial tcp 127.0.0.1:8000: connect: connection refused"), "Cannot reach"},
		{"other", errors.New("weird"), "Analysis failed: weird"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe(tt.err)
			if tt.want == "" {
				if got != "" {
					t.Errorf("got %q, want empty", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("got %q, want substring %q", got, tt.want)
			}
		})
	}
}

func TestRequestError_Message(t *testing.T) {
	err := &RequestError{StatusCode: 500, Status: "500 Internal Server Error", Body: "boom"}
	if got := err.Error(); got != "analysis request failed: 500 Internal Server Error: boom" {
		t.Errorf("got %q", got)
	}
}

func TestStreamError_Unwrap(t *testing.T) {
	inner := errors.New("reset")
	if !errors.Is(&StreamError{Err: inner}, inner) {
		t.Error("StreamError should unwrap to its cause")
	}
}

func TestRequest_Validate(t *testing.T) {
	if err := testRequest.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
	bad := []Request{
		{Agents: []string{"a"}, Model: "m"},
		{Symbol: "BTC", Model: "m"},
		{Symbol: "BTC", Agents: []string{" "}, Model: "m"},
		{Symbol: "BTC", Agents: []string{"a"}},
	}
	for i, r := range bad {
		if err := r.Validate(); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
