// Package events holds the collector's view of SDK events: categorization,
// validation, fingerprints and the envelope published to JetStream.
package events

import (
	"strings"

	"github.com/moveoone/moveo/sdk/moveo"
)

// Event category constants.
const (
	CategorySession     = "session"
	CategoryMetadata    = "metadata"
	CategoryScreen      = "screen"
	CategoryInteraction = "interaction"
	CategoryUnknown     = "unknown"

	TypeUnknown = "unknown"
)

// GetCategoryAndType maps a wire event to the category and type used in
// subjects and warehouse partitions. Track events are split by element type:
// screen events land in the screen category, everything else is an
// interaction, and the action becomes the type.
func GetCategoryAndType(event moveo.Event) (category, eventType string) {
	switch event.Type {
	case moveo.KindStartSession:
		return CategorySession, "start"
	case moveo.KindStopSession:
		return CategorySession, "stop"
	case moveo.KindUpdateMetadata:
		return CategoryMetadata, "update"
	case moveo.KindTrack:
		category = CategoryInteraction
		eventType = TypeUnknown
		if p := event.Properties; p != nil {
			if p.ElementType == moveo.TypeScreen {
				category = CategoryScreen
			}
			if a := SanitizeSubjectName(p.Action); a != "" {
				eventType = a
			}
		}
		return category, eventType
	default:
		if t := SanitizeSubjectName(string(event.Type)); t != "" {
			return CategoryUnknown, t
		}
		return CategoryUnknown, TypeUnknown
	}
}

// SanitizeSubjectName sanitizes a name for use in NATS subjects.
func SanitizeSubjectName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, "*", "_")
	name = strings.ReplaceAll(name, ">", "_")
	return name
}
