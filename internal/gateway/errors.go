package gateway

import "errors"

// Sentinel errors for the gateway package.
var (
	ErrAtLeastOneEvent = errors.New("at least one event is required")
	ErrBatchTooLarge   = errors.New("batch exceeds maximum event count")
	ErrAppIDRequired   = errors.New("app_id is required")
	ErrAllRejected     = errors.New("every event in the batch was rejected")
	ErrPublishFailed   = errors.New("failed to publish events")
)
