package analysis

import "context"

type contextKey string

const runIDKey contextKey = "hedgewatch_run_id"

// ContextWithRunID returns a context carrying the run ID.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext extracts the run ID from context. Returns "" if not set.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}
