// Package forensics builds and persists immutable captures of session and
// detector state.
//
// A record is assembled at an escalation trigger (critical risk, pattern
// blocking, session end, or an analyst request) and written append-only:
// records are never updated or overwritten, and each capture produces a new
// artifact keyed by ID and capture time.
package forensics

import (
	"time"

	"github.com/mbd888/warden/internal/anomaly"
	"github.com/mbd888/warden/internal/idgen"
	"github.com/mbd888/warden/internal/risk"
	"github.com/mbd888/warden/internal/session"
)

// Reason identifies what triggered a capture.
type Reason string

const (
	// ReasonCriticalRisk marks captures taken by the critical-level
	// response action.
	ReasonCriticalRisk Reason = "critical_risk"
	// ReasonBlockedPattern marks a recurrence of an already blocked
	// pattern signature.
	ReasonBlockedPattern Reason = "blocked_pattern"
	// ReasonPatternBlocked marks the capture taken when a signature
	// crosses the block threshold.
	ReasonPatternBlocked Reason = "pattern_blocked"
	// ReasonSessionEnd marks the capture attached to an explicit
	// session end.
	ReasonSessionEnd Reason = "session_end"
	// ReasonManual marks analyst-requested captures.
	ReasonManual Reason = "manual"
)

// EventCounts is the per-modality event tally at capture time.
type EventCounts struct {
	Keystrokes    int `json:"keystrokes"`
	PointerEvents int `json:"pointerEvents"`
}

// RiskMetrics is the latest risk sample plus the trend classification.
type RiskMetrics struct {
	CurrentCompositeRisk float64    `json:"currentCompositeRisk"`
	KeystrokeRisk        float64    `json:"keystrokeRisk"`
	PointerRisk          float64    `json:"pointerRisk"`
	RiskTrend            risk.Trend `json:"riskTrend"`
}

// EventFrequency is events per second since session start, zero for a
// zero-duration session.
type EventFrequency struct {
	Keystrokes    float64 `json:"keystrokes"`
	PointerEvents float64 `json:"pointerEvents"`
}

// BehavioralIndicators summarizes detector state at capture time.
type BehavioralIndicators struct {
	HasDrift       bool           `json:"hasDrift"`
	EventFrequency EventFrequency `json:"eventFrequency"`
}

// Record is one immutable forensic capture.
type Record struct {
	ID                     string               `json:"id"`
	UserID                 string               `json:"userId"`
	Reason                 Reason               `json:"reason"`
	CapturedAt             time.Time            `json:"capturedAt"`
	SessionStart           time.Time            `json:"sessionStart"`
	SessionDurationSeconds float64              `json:"sessionDurationSeconds"`
	EventCounts            EventCounts          `json:"eventCounts"`
	RiskMetrics            RiskMetrics          `json:"riskMetrics"`
	BehavioralIndicators   BehavioralIndicators `json:"behavioralIndicators"`
	BlockedPatterns        []string             `json:"blockedPatterns"`
	PatternCounts          map[string]int       `json:"patternCounts"`
}

// Build assembles a record from the session and the detector's registry.
// It reads state but never mutates it; persistence is the caller's concern.
func Build(d *anomaly.Detector, sess *session.Session, reason Reason, now time.Time) *Record {
	duration := now.Sub(sess.StartTime).Seconds()
	rec := &Record{
		ID:                     idgen.WithPrefix("fr_"),
		UserID:                 sess.UserID,
		Reason:                 reason,
		CapturedAt:             now,
		SessionStart:           sess.StartTime,
		SessionDurationSeconds: duration,
		EventCounts: EventCounts{
			Keystrokes:    len(sess.KeystrokeEvents),
			PointerEvents: len(sess.PointerEvents),
		},
		RiskMetrics: RiskMetrics{
			RiskTrend: risk.TrendOf(sess.RiskSamples),
		},
		BehavioralIndicators: BehavioralIndicators{
			HasDrift: d.HasDrift(sess.RiskSamples),
		},
	}
	if len(sess.RiskSamples) > 0 {
		latest := sess.RiskSamples[len(sess.RiskSamples)-1]
		rec.RiskMetrics.CurrentCompositeRisk = latest.Composite
		rec.RiskMetrics.KeystrokeRisk = latest.KeystrokeRisk
		rec.RiskMetrics.PointerRisk = latest.PointerRisk
	}
	if duration > 0 {
		rec.BehavioralIndicators.EventFrequency = EventFrequency{
			Keystrokes:    float64(len(sess.KeystrokeEvents)) / duration,
			PointerEvents: float64(len(sess.PointerEvents)) / duration,
		}
	}
	snap := d.Registry().Snapshot()
	rec.BlockedPatterns = snap.Blocked
	rec.PatternCounts = snap.Counts
	return rec
}
