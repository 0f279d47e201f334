package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// requestToken returns the bearer token, falling back to the "token" query
// parameter for browser EventSource and WebSocket clients that cannot set
// headers.
func requestToken(r *http.Request) string {
	if t := extractBearerToken(r); t != "" {
		return t
	}
	return r.URL.Query().Get("token")
}

// tokenMatch performs a constant-time comparison of a provided token against the expected token.
// Returns true if expected is empty (no auth configured) or if tokens match.
func tokenMatch(provided, expected string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// rateLimitKey identifies the caller for rate limiting: the token when one
// is presented, otherwise the remote IP.
func rateLimitKey(r *http.Request) string {
	if t := requestToken(r); t != "" {
		return "token:" + t
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
