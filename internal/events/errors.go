package events

import "errors"

// Validation errors returned by Validate.
var (
	ErrMissingContext    = errors.New("event context is required")
	ErrMissingSessionID  = errors.New("event session id is required")
	ErrUnknownKind       = errors.New("unknown event type")
	ErrInvalidTimestamp  = errors.New("event timestamp must be positive")
	ErrMissingProperties = errors.New("track event requires properties")
)
