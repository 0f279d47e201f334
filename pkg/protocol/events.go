package protocol

// Upstream event-stream event names.
const (
	EventMessage  = "message" // default when a frame carries no event: line
	EventProgress = "progress"
	EventResult   = "result"
)

// Gateway feed event names.
const (
	EventSnapshot  = "snapshot"
	EventCompleted = "analysis.completed"
	EventFailed    = "analysis.failed"
	EventHeartbeat = "heartbeat"
)

// Session states as they appear on the wire.
const (
	StateIdle      = "idle"
	StateStreaming = "streaming"
	StateCompleted = "completed"
	StateFailed    = "failed"
)
