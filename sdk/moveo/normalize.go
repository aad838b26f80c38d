package moveo

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// noValue is the wire value for anything that is not a string, slice or number.
const noValue = "-"

// TrackEvent is a semantic UI event supplied by the caller.
type TrackEvent struct {
	// SemanticGroup optionally clusters related elements.
	SemanticGroup string

	// ID is the element identifier.
	ID string

	// Action is what happened to the element (see the Action constants).
	Action string

	// Type is the element type (see the Type constants).
	Type string

	// Value is coerced to a string: strings pass through, slices are
	// comma-joined, numbers are formatted, anything else becomes "-".
	Value any

	// Metadata is copied onto the buffered event.
	Metadata map[string]any
}

// normalize maps a caller event onto the wire properties.
func normalize(ev TrackEvent) *Properties {
	return &Properties{
		SemanticGroup: ev.SemanticGroup,
		ElementID:     ev.ID,
		Action:        ev.Action,
		ElementType:   ev.Type,
		Value:         coerceValue(ev.Value),
	}
}

// coerceValue applies the value rule in priority order:
// string, slice or array, number, everything else.
func coerceValue(v any) string {
	if v == nil {
		return noValue
	}

	if s, ok := v.(string); ok {
		return s
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return noValue
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = elementString(rv.Index(i))
		}
		return strings.Join(parts, ",")
	}

	if s, ok := numberString(rv); ok {
		return s
	}

	return noValue
}

// elementString stringifies a single slice element the way a join would:
// nil elements become empty strings.
func elementString(rv reflect.Value) string {
	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return ""
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	}
	if s, ok := numberString(rv); ok {
		return s
	}
	return fmt.Sprint(rv.Interface())
}

func numberString(rv reflect.Value) (string, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	}
	return "", false
}

// validateMetadata fails fast on metadata that could never be encoded,
// since one bad map would otherwise poison a whole batch.
func validateMetadata(meta map[string]any) error {
	if len(meta) == 0 {
		return nil
	}
	if _, err := json.Marshal(meta); err != nil {
		return fmt.Errorf("%w: metadata: %w", ErrInvalidEvent, err)
	}
	return nil
}

// isValidString reports whether s is a non-blank string.
func isValidString(s string) bool {
	return strings.TrimSpace(s) != ""
}

// mergeMetadata returns a new map with the keys of base overlaid by extra.
func mergeMetadata(base, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
