package domain

import (
	"errors"
	"time"
)

// ErrInvalidLatency is returned for malformed latency reports.
var ErrInvalidLatency = errors.New("invalid latency report")

// LatencyRecord is one client-side prediction timing report.
type LatencyRecord struct {
	ID                   string
	AppID                string
	ModelID              string
	SessionID            string
	Client               string
	Status               string
	StartTimeMs          int64
	EndTimeMs            int64
	TotalExecutionTimeMs int64
	ReceivedAt           time.Time
}

// Validate rejects reports without identifiers or with inverted timings.
func (r *LatencyRecord) Validate() error {
	switch {
	case r.ModelID == "":
		return errors.Join(ErrInvalidLatency, errors.New("model_id is required"))
	case r.SessionID == "":
		return errors.Join(ErrInvalidLatency, errors.New("session_id is required"))
	case r.Status == "":
		return errors.Join(ErrInvalidLatency, errors.New("latency_data.status is required"))
	case r.EndTimeMs < r.StartTimeMs:
		return errors.Join(ErrInvalidLatency, errors.New("end_time_ms precedes start_time_ms"))
	case r.TotalExecutionTimeMs < 0:
		return errors.Join(ErrInvalidLatency, errors.New("total_execution_time_ms is negative"))
	}
	return nil
}
