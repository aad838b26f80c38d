package moveo

import "errors"

// Validation errors returned synchronously by the client. Telemetry failures
// past validation are never surfaced; they are logged.
var (
	ErrInvalidToken         = errors.New("moveo: token is not a valid string")
	ErrInvalidContext       = errors.New("moveo: context name is not a valid string")
	ErrNoActiveContext      = errors.New("moveo: no active context, call Start or Track first")
	ErrInvalidEvent         = errors.New("moveo: event is not valid")
	ErrInstanceNotCreated   = errors.New("moveo: instance is not created")
	ErrInvalidEndpoint      = errors.New("moveo: endpoint must be a valid URL")
	ErrInvalidFlushInterval = errors.New("moveo: flush interval out of range")
	ErrClosed               = errors.New("moveo: client is closed")
)
