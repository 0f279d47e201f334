package protocol

// Error codes returned by the gateway.
const (
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrNotFound          = "NOT_FOUND"
	ErrBusy              = "BUSY"
	ErrResourceExhausted = "RESOURCE_EXHAUSTED"
	ErrUnavailable       = "UNAVAILABLE"
	ErrInternal          = "INTERNAL"
)
