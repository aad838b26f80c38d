package moveo

import (
	"encoding/json"
	"errors"
	"testing"
)

// TestCoerceValue verifies the value rule for every input shape.
func TestCoerceValue(t *testing.T) {
	type label struct{ Name string }
	type caption string
	text := "Continue"
	var nilText *string

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"nil", nil, "-"},
		{"string", "Pay now", "Pay now"},
		{"empty string", "", ""},
		{"named string", caption("Buy"), "Buy"},
		{"string pointer", &text, "Continue"},
		{"nil string pointer", nilText, "-"},
		{"int", 42, "42"},
		{"negative int64", int64(-7), "-7"},
		{"uint8", uint8(200), "200"},
		{"float64", 3.14, "3.14"},
		{"float64 integral", 2.0, "2"},
		{"float32", float32(1.5), "1.5"},
		{"json number", json.Number("17"), "17"},
		{"string slice", []string{"a", "b", "c"}, "a,b,c"},
		{"int array", [3]int{1, 2, 3}, "1,2,3"},
		{"mixed slice", []any{1, "x", nil, true, 2.5}, "1,x,,true,2.5"},
		{"empty slice", []string{}, ""},
		{"bool", true, "-"},
		{"map", map[string]any{"k": "v"}, "-"},
		{"struct", label{Name: "x"}, "-"},
		{"pointer", &label{}, "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := coerceValue(tt.value); got != tt.want {
				t.Errorf("coerceValue(%#v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

// TestNormalize_MapsFields verifies the short-key property mapping.
func TestNormalize_MapsFields(t *testing.T) {
	props := normalize(TrackEvent{
		SemanticGroup: "cart",
		ID:            "pay",
		Action:        ActionClick,
		Type:          TypeButton,
		Value:         []int{1, 2},
	})

	want := Properties{SemanticGroup: "cart", ElementID: "pay", Action: "click", ElementType: "button", Value: "1,2"}
	if *props != want {
		t.Errorf("normalize() = %+v, want %+v", *props, want)
	}
}

// TestNormalize_EmptySemanticGroupIsEncoded verifies sg is always on the wire.
func TestNormalize_EmptySemanticGroupIsEncoded(t *testing.T) {
	data, err := json.Marshal(normalize(TrackEvent{ID: "title", Action: ActionView, Type: TypeText}))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	for _, key := range []string{"sg", "eID", "eA", "eT", "eV"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("key %q missing from %s", key, data)
		}
	}
	if raw["sg"] != "" {
		t.Errorf("sg = %v, want empty string", raw["sg"])
	}
	if raw["eV"] != "-" {
		t.Errorf("eV = %v, want -", raw["eV"])
	}
}

// TestValidateMetadata_RejectsUnencodable verifies fail-fast on bad metadata.
func TestValidateMetadata_RejectsUnencodable(t *testing.T) {
	if err := validateMetadata(map[string]any{"ok": 1}); err != nil {
		t.Errorf("validateMetadata(valid) error = %v", err)
	}
	if err := validateMetadata(nil); err != nil {
		t.Errorf("validateMetadata(nil) error = %v", err)
	}

	err := validateMetadata(map[string]any{"fn": func() {}})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("validateMetadata(func) error = %v, want ErrInvalidEvent", err)
	}
}

// TestMergeMetadata_DoesNotAlias verifies merge returns a fresh map.
func TestMergeMetadata_DoesNotAlias(t *testing.T) {
	base := map[string]any{"a": 1, "b": 1}
	merged := mergeMetadata(base, map[string]any{"b": 2})

	if merged["a"] != 1 || merged["b"] != 2 {
		t.Errorf("mergeMetadata() = %v", merged)
	}

	merged["a"] = 99
	if base["a"] != 1 {
		t.Error("mergeMetadata() result aliases base")
	}
}

// TestIsValidString verifies blank detection.
func TestIsValidString(t *testing.T) {
	for _, s := range []string{"", " ", "\t\n"} {
		if isValidString(s) {
			t.Errorf("isValidString(%q) = true, want false", s)
		}
	}
	if !isValidString(" home ") {
		t.Error("isValidString(\" home \") = false, want true")
	}
}
