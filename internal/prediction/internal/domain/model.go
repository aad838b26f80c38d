// Package domain contains the prediction model and latency record types and
// the scoring rules applied to a session's buffered events.
package domain

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/moveoone/moveo/sdk/moveo"
)

// Domain errors.
var (
	ErrModelNotFound    = errors.New("model not found")
	ErrNotEnoughEvents  = errors.New("not enough events to score")
	ErrConditionNotMet  = errors.New("conditional event not present in session")
	ErrInvalidModel     = errors.New("invalid model")
	ErrInvalidSessionID = errors.New("session_id is required")
	ErrNoEvents         = errors.New("events must not be empty")
	ErrSessionMismatch  = errors.New("events belong to a different session")
)

// Model is a logistic scoring model registered for one app. Weights are
// keyed by the feature keys FeatureKeys derives from each event.
type Model struct {
	AppID            string
	ID               string
	Name             string
	MinEvents        int
	Threshold        float64
	Bias             float64
	Weights          map[string]float64
	ConditionalEvent string
	CreatedAt        time.Time
}

// Validate checks the fields required before a model is stored.
func (m *Model) Validate() error {
	switch {
	case strings.TrimSpace(m.AppID) == "":
		return errors.Join(ErrInvalidModel, errors.New("app_id is required"))
	case strings.TrimSpace(m.ID) == "":
		return errors.Join(ErrInvalidModel, errors.New("id is required"))
	case m.MinEvents < 1:
		return errors.Join(ErrInvalidModel, errors.New("min_events must be at least 1"))
	case m.Threshold < 0 || m.Threshold > 1:
		return errors.Join(ErrInvalidModel, errors.New("threshold must be within [0, 1]"))
	}
	return nil
}

// Prediction is the outcome of scoring a session.
type Prediction struct {
	Probability float64
	Binary      bool
}

// Score evaluates events against the model. Callers check preconditions
// with Ready first.
func (m *Model) Score(events []moveo.Event) Prediction {
	z := m.Bias
	for _, e := range events {
		for _, key := range FeatureKeys(e) {
			z += m.Weights[key]
		}
	}

	p := 1 / (1 + math.Exp(-z))
	return Prediction{
		Probability: p,
		Binary:      p >= m.Threshold,
	}
}

// Ready reports whether events are sufficient for scoring. A session with
// fewer than MinEvents events is pending; a session missing the conditional
// event conflicts with the model.
func (m *Model) Ready(events []moveo.Event) error {
	if len(events) < m.MinEvents {
		return ErrNotEnoughEvents
	}
	if m.ConditionalEvent == "" {
		return nil
	}
	for _, e := range events {
		for _, key := range FeatureKeys(e) {
			if key == m.ConditionalEvent {
				return nil
			}
		}
	}
	return ErrConditionNotMet
}

// FeatureKeys returns the keys an event contributes to a score:
//
//	kind:<type>        every event
//	ctx:<context>      every event with a context
//	<eT>:<eA>          track events
//	el:<eID>           track events with an element id
func FeatureKeys(e moveo.Event) []string {
	keys := make([]string, 0, 4)
	keys = append(keys, "kind:"+string(e.Type))
	if e.Context != "" {
		keys = append(keys, "ctx:"+e.Context)
	}
	if p := e.Properties; p != nil {
		keys = append(keys, p.ElementType+":"+p.Action)
		if p.ElementID != "" {
			keys = append(keys, "el:"+p.ElementID)
		}
	}
	return keys
}

// CheckSession verifies that sessionID is set and that every event was
// recorded under it.
func CheckSession(sessionID string, events []moveo.Event) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSessionID
	}
	if len(events) == 0 {
		return ErrNoEvents
	}
	for _, e := range events {
		if e.SessionID != sessionID {
			return ErrSessionMismatch
		}
	}
	return nil
}
