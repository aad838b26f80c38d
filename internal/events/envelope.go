package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moveoone/moveo/sdk/moveo"
)

// Envelope wraps an accepted SDK event with the server-side fields the
// pipeline needs. It is the JSON payload of every JetStream message.
type Envelope struct {
	ID           string      `json:"id"`
	AppID        string      `json:"app_id"`
	ReceivedAtMs int64       `json:"received_at_ms"`
	Category     string      `json:"category"`
	EventType    string      `json:"event_type"`
	Fingerprint  string      `json:"fingerprint"`
	Event        moveo.Event `json:"event"`
}

// NewEnvelope builds the envelope for an event accepted from appID.
func NewEnvelope(appID string, event moveo.Event, receivedAt time.Time) Envelope {
	category, eventType := GetCategoryAndType(event)
	return Envelope{
		ID:           newID(),
		AppID:        appID,
		ReceivedAtMs: receivedAt.UnixMilli(),
		Category:     category,
		EventType:    eventType,
		Fingerprint:  Fingerprint(appID, event),
		Event:        event,
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Validate checks the fields every SDK event must carry.
func Validate(event moveo.Event) error {
	if strings.TrimSpace(event.Context) == "" {
		return ErrMissingContext
	}
	if strings.TrimSpace(event.SessionID) == "" {
		return ErrMissingSessionID
	}
	if event.Timestamp <= 0 {
		return ErrInvalidTimestamp
	}

	switch event.Type {
	case moveo.KindStartSession, moveo.KindStopSession, moveo.KindUpdateMetadata:
	case moveo.KindTrack:
		if event.Properties == nil {
			return ErrMissingProperties
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, event.Type)
	}

	return nil
}

// Fingerprint returns a stable hash identifying an event from one app.
// SDK retries and replays of the same batch produce the same fingerprint.
func Fingerprint(appID string, event moveo.Event) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0x1f})
	}

	write(appID)
	write(event.SessionID)
	write(strconv.FormatInt(event.Timestamp, 10))
	write(string(event.Type))
	write(event.Context)
	write(event.UserID)
	if p := event.Properties; p != nil {
		write(p.SemanticGroup)
		write(p.ElementID)
		write(p.Action)
		write(p.ElementType)
		write(p.Value)
	}
	if len(event.Metadata) > 0 {
		// encoding/json sorts map keys, so equal maps encode equally.
		if meta, err := json.Marshal(event.Metadata); err == nil {
			h.Write(meta)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}
