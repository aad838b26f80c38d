package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/moveoone/moveo/sdk/moveo"
)

func trackEvent(sid, eType, action, id string) moveo.Event {
	return moveo.Event{
		Context:   "checkout",
		Type:      moveo.KindTrack,
		SessionID: sid,
		Properties: &moveo.Properties{
			ElementID:   id,
			Action:      action,
			ElementType: eType,
		},
	}
}

func TestFeatureKeys(t *testing.T) {
	tests := []struct {
		name  string
		event moveo.Event
		want  []string
	}{
		{
			name:  "start session",
			event: moveo.Event{Context: "home", Type: moveo.KindStartSession},
			want:  []string{"kind:start_session", "ctx:home"},
		},
		{
			name:  "track with element",
			event: trackEvent("s", moveo.TypeButton, moveo.ActionClick, "pay"),
			want:  []string{"kind:track", "ctx:checkout", "button:click", "el:pay"},
		},
		{
			name:  "no context",
			event: moveo.Event{Type: moveo.KindUpdateMetadata},
			want:  []string{"kind:update_metadata"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FeatureKeys(tt.event)
			if len(got) != len(tt.want) {
				t.Fatalf("FeatureKeys() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("FeatureKeys()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestModel_Score(t *testing.T) {
	m := &Model{
		Threshold: 0.5,
		Bias:      -1,
		Weights:   map[string]float64{"button:click": 1.5, "el:pay": 0.5},
	}

	got := m.Score([]moveo.Event{trackEvent("s", moveo.TypeButton, moveo.ActionClick, "pay")})
	want := 1 / (1 + math.Exp(-1.0))
	if math.Abs(got.Probability-want) > 1e-9 {
		t.Errorf("Probability = %v, want %v", got.Probability, want)
	}
	if !got.Binary {
		t.Error("Binary = false, want true")
	}

	low := m.Score(nil)
	if low.Binary {
		t.Errorf("Score(nil) = %+v, want negative", low)
	}
}

func TestModel_Ready(t *testing.T) {
	events := []moveo.Event{
		{Context: "home", Type: moveo.KindStartSession, SessionID: "s"},
		trackEvent("s", moveo.TypeButton, moveo.ActionClick, "pay"),
	}

	tests := []struct {
		name  string
		model Model
		want  error
	}{
		{"ready", Model{MinEvents: 2}, nil},
		{"too few", Model{MinEvents: 3}, ErrNotEnoughEvents},
		{"condition met", Model{MinEvents: 1, ConditionalEvent: "el:pay"}, nil},
		{"condition missing", Model{MinEvents: 1, ConditionalEvent: "el:cancel"}, ErrConditionNotMet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.model.Ready(events); !errors.Is(err, tt.want) {
				t.Errorf("Ready() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestModel_Validate(t *testing.T) {
	valid := Model{AppID: "app", ID: "m1", MinEvents: 1, Threshold: 0.5}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	bad := []Model{
		{ID: "m1", MinEvents: 1},
		{AppID: "app", MinEvents: 1},
		{AppID: "app", ID: "m1"},
		{AppID: "app", ID: "m1", MinEvents: 1, Threshold: 1.5},
	}
	for i, m := range bad {
		if err := m.Validate(); !errors.Is(err, ErrInvalidModel) {
			t.Errorf("case %d: Validate() = %v, want ErrInvalidModel", i, err)
		}
	}
}

func TestCheckSession(t *testing.T) {
	events := []moveo.Event{trackEvent("sid_1", moveo.TypeButton, moveo.ActionClick, "a")}

	if err := CheckSession("sid_1", events); err != nil {
		t.Errorf("CheckSession() error = %v", err)
	}
	if err := CheckSession(" ", events); !errors.Is(err, ErrInvalidSessionID) {
		t.Errorf("blank session: %v", err)
	}
	if err := CheckSession("sid_1", nil); !errors.Is(err, ErrNoEvents) {
		t.Errorf("no events: %v", err)
	}
	if err := CheckSession("sid_2", events); !errors.Is(err, ErrSessionMismatch) {
		t.Errorf("mismatch: %v", err)
	}
}

func TestLatencyRecord_Validate(t *testing.T) {
	ok := LatencyRecord{ModelID: "m", SessionID: "s", Status: "success", StartTimeMs: 1, EndTimeMs: 5, TotalExecutionTimeMs: 4}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	inverted := ok
	inverted.EndTimeMs = 0
	if err := inverted.Validate(); !errors.Is(err, ErrInvalidLatency) {
		t.Errorf("inverted timings: %v", err)
	}

	noModel := ok
	noModel.ModelID = ""
	if err := noModel.Validate(); !errors.Is(err, ErrInvalidLatency) {
		t.Errorf("missing model: %v", err)
	}
}
