package moveo

import "time"

// LibVersion is stamped into the metadata of every start_session event.
const LibVersion = "1.0.0"

// ClientName identifies this SDK in latency reports.
const ClientName = "go"

// Kind is the wire type of a buffered event.
type Kind string

// Event kinds.
const (
	KindStartSession   Kind = "start_session"
	KindStopSession    Kind = "stop_session"
	KindTrack          Kind = "track"
	KindUpdateMetadata Kind = "update_metadata"
)

// Properties is the fixed short-key schema carried by track events.
// Every key is always present on the wire.
type Properties struct {
	SemanticGroup string `json:"sg"`
	ElementID     string `json:"eID"`
	Action        string `json:"eA"`
	ElementType   string `json:"eT"`
	Value         string `json:"eV"`
}

// Event is one buffered record as it is sent to the collector.
type Event struct {
	// Context is the screen or flow name active when the event was recorded.
	Context string `json:"c"`

	// Type is the event kind.
	Type Kind `json:"type"`

	// Timestamp is milliseconds since epoch, captured at append time.
	Timestamp int64 `json:"t"`

	// Properties is set only for track events.
	Properties *Properties `json:"prop,omitempty"`

	// Metadata is caller-supplied context such as the app version.
	Metadata map[string]any `json:"meta,omitempty"`

	// SessionID is the session active when the event was appended.
	SessionID string `json:"sId"`

	// UserID is the identity set through Identify, if any.
	UserID string `json:"uId,omitempty"`
}

// batchRequest is the body of the collector endpoint.
type batchRequest struct {
	Events []Event `json:"events"`
}

// nowMillis returns the current wall clock in milliseconds since epoch.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
