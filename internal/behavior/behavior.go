// Package behavior defines the event and risk-sample types shared by the
// ingestion pipeline.
//
// Events are tagged variants: a KeystrokeEvent or a PointerEvent, validated
// once at ingestion and immutable afterwards. Each event belongs to exactly
// one session; downstream components read them but never mutate them.
package behavior

import (
	"fmt"
	"math"
	"time"
)

// Modality identifies the input channel an event came from.
type Modality string

const (
	ModalityKeystroke Modality = "keystroke"
	ModalityPointer   Modality = "pointer"
)

// PointerKind is the sub-type of a pointer event.
type PointerKind string

const (
	PointerMove  PointerKind = "move"
	PointerClick PointerKind = "click"
	PointerDrag  PointerKind = "drag"
)

// Event is the common surface of both event variants. Concrete types carry
// the modality-specific fields used by the scorers.
type Event interface {
	// EventModality reports which modality the event belongs to.
	EventModality() Modality
	// OccurredAt returns the event timestamp used for ordering and
	// signature construction.
	OccurredAt() time.Time
	// Token renders the event as a pattern-signature token.
	Token() string
	// Validate rejects malformed events before they are ingested.
	Validate() error
}

// KeystrokeEvent is a single key press/release pair.
type KeystrokeEvent struct {
	Key         string    `json:"key"`
	PressTime   time.Time `json:"pressTime"`
	ReleaseTime time.Time `json:"releaseTime"`
	Pressure    float64   `json:"pressure,omitempty"`
	X           float64   `json:"x,omitempty"`
	Y           float64   `json:"y,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// EventModality implements Event.
func (e KeystrokeEvent) EventModality() Modality { return ModalityKeystroke }

// OccurredAt implements Event.
func (e KeystrokeEvent) OccurredAt() time.Time { return e.Timestamp }

// Token implements Event.
func (e KeystrokeEvent) Token() string { return "k:" + e.Key }

// HoldTime is how long the key was held down.
func (e KeystrokeEvent) HoldTime() time.Duration {
	return e.ReleaseTime.Sub(e.PressTime)
}

// Validate implements Event.
func (e KeystrokeEvent) Validate() error {
	if e.Key == "" {
		return &ValidationError{Field: "key", Message: "is required"}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "is required"}
	}
	if e.PressTime.IsZero() || e.ReleaseTime.IsZero() {
		return &ValidationError{Field: "pressTime", Message: "press and release times are required"}
	}
	if e.ReleaseTime.Before(e.PressTime) {
		return &ValidationError{Field: "releaseTime", Message: "must not precede pressTime"}
	}
	if !finite(e.Pressure) || !finite(e.X) || !finite(e.Y) {
		return &ValidationError{Field: "pressure", Message: "numeric fields must be finite"}
	}
	return nil
}

// PointerEvent is a single pointer movement, click, or drag sample.
type PointerEvent struct {
	Kind         PointerKind `json:"kind"`
	X            float64     `json:"x"`
	Y            float64     `json:"y"`
	Pressure     float64     `json:"pressure,omitempty"`
	Velocity     float64     `json:"velocity,omitempty"`
	Acceleration float64     `json:"acceleration,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// EventModality implements Event.
func (e PointerEvent) EventModality() Modality { return ModalityPointer }

// OccurredAt implements Event.
func (e PointerEvent) OccurredAt() time.Time { return e.Timestamp }

// Token implements Event.
func (e PointerEvent) Token() string { return "m:" + string(e.Kind) }

// Validate implements Event.
func (e PointerEvent) Validate() error {
	switch e.Kind {
	case PointerMove, PointerClick, PointerDrag:
	case "":
		return &ValidationError{Field: "kind", Message: "is required"}
	default:
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown pointer kind %q", e.Kind)}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "is required"}
	}
	if !finite(e.X) || !finite(e.Y) {
		return &ValidationError{Field: "x", Message: "coordinates must be finite"}
	}
	if !finite(e.Pressure) || !finite(e.Velocity) || !finite(e.Acceleration) {
		return &ValidationError{Field: "pressure", Message: "numeric fields must be finite"}
	}
	return nil
}

// RiskSample is one scored observation of a session. Samples are append-only:
// the aggregator produces them, the detector fills IsAnomaly, and they are
// then owned by the session's history.
type RiskSample struct {
	Timestamp     time.Time `json:"timestamp"`
	KeystrokeRisk float64   `json:"keystrokeRisk"`
	PointerRisk   float64   `json:"pointerRisk"`
	Composite     float64   `json:"composite"`
	IsAnomaly     bool      `json:"isAnomaly"`
}

// ValidationError reports a malformed event. Rejected events are never
// ingested; the caller is notified and the session is left untouched.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return "invalid event: " + e.Field + " " + e.Message
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
