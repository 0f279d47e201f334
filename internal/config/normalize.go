package config

import (
	"regexp"
	"strings"
)

// DefaultAgentID is the analyst requested when none is configured.
const DefaultAgentID = "technical_analyst"

var (
	validIDRe      = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{0,63}$`)
	invalidChars   = regexp.MustCompile(`[^a-z0-9_]+`)
	edgeUnderscore = regexp.MustCompile(`^_+|_+$`)
	validSymbolRe  = regexp.MustCompile(`^[A-Z0-9]{1,15}(-[A-Z0-9]{1,10})?$`)
)

// NormalizeAgentID converts a user-provided analyst name into the
// upstream's agent key:
//   - Lowercase, max 64 chars
//   - Only [a-z0-9_] allowed
//   - Runs of other characters (spaces, dashes) become "_"
//   - Leading/trailing underscores stripped
//   - Empty result defaults to "technical_analyst"
func NormalizeAgentID(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultAgentID
	}

	lower := strings.ToLower(trimmed)
	if validIDRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "_")
	result = edgeUnderscore.ReplaceAllString(result, "")

	if len(result) > 64 {
		result = strings.TrimRight(result[:64], "_")
	}
	if result == "" {
		return DefaultAgentID
	}
	return result
}

// NormalizeSymbol uppercases a ticker symbol and strips whitespace.
// It returns "" when the result is not a plausible symbol such as
// "BTC" or "BTC-USDT".
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.Join(strings.Fields(symbol), ""))
	if !validSymbolRe.MatchString(s) {
		return ""
	}
	return s
}
