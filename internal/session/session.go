// Package session owns the per-user behavioral sessions and their bounded
// archive history.
//
// Exactly one session is active per user at a time. A session is created on
// the first event from a user with no active session (or whose prior session
// idled past the timeout), mutated on every accepted event, and archived on
// explicit end, on lazy timeout detection, or when a critical escalation
// locks it.
//
// Concurrency contract: the manager guards only its own maps. All reads and
// writes of a live Session's fields must happen under the caller's per-user
// serialization (the engine holds a per-user lock across the whole scoring
// pipeline); different users proceed fully in parallel.
package session

import (
	"time"

	"github.com/mbd888/warden/internal/behavior"
)

// EndReason says why a session was archived.
type EndReason string

const (
	ReasonEnded   EndReason = "ended"
	ReasonTimeout EndReason = "timeout"
	ReasonLocked  EndReason = "locked"
)

// Session is one user's live behavioral state.
//
// Invariants: LastActivity >= StartTime; ConsecutiveAnomalies <= AnomalyCount.
type Session struct {
	UserID               string                    `json:"userId"`
	KeystrokeEvents      []behavior.KeystrokeEvent `json:"-"`
	PointerEvents        []behavior.PointerEvent   `json:"-"`
	RiskSamples          []behavior.RiskSample     `json:"-"`
	StartTime            time.Time                 `json:"startTime"`
	LastActivity         time.Time                 `json:"lastActivity"`
	AnomalyCount         int                       `json:"anomalyCount"`
	ConsecutiveAnomalies int                       `json:"consecutiveAnomalies"`
}

// NewSession opens an empty session starting now.
func NewSession(userID string, now time.Time) *Session {
	return &Session{
		UserID:       userID,
		StartTime:    now,
		LastActivity: now,
	}
}

// AppendKeystroke adds a keystroke event, trimming the buffer to the last
// max entries.
func (s *Session) AppendKeystroke(e behavior.KeystrokeEvent, max int) {
	s.KeystrokeEvents = append(s.KeystrokeEvents, e)
	if max > 0 && len(s.KeystrokeEvents) > max {
		s.KeystrokeEvents = s.KeystrokeEvents[len(s.KeystrokeEvents)-max:]
	}
}

// AppendPointer adds a pointer event, trimming the buffer to the last max
// entries.
func (s *Session) AppendPointer(e behavior.PointerEvent, max int) {
	s.PointerEvents = append(s.PointerEvents, e)
	if max > 0 && len(s.PointerEvents) > max {
		s.PointerEvents = s.PointerEvents[len(s.PointerEvents)-max:]
	}
}

// AppendSample records a classified risk sample, trimming to the last max.
// Samples are appended in the same order their events were ingested.
func (s *Session) AppendSample(sample behavior.RiskSample, max int) {
	s.RiskSamples = append(s.RiskSamples, sample)
	if max > 0 && len(s.RiskSamples) > max {
		s.RiskSamples = s.RiskSamples[len(s.RiskSamples)-max:]
	}
}

// ObserveAnomaly applies the consecutive-run bookkeeping for one classified
// sample and returns the updated run length. Any non-anomalous sample resets
// the run to zero.
func (s *Session) ObserveAnomaly(isAnomaly bool) int {
	if isAnomaly {
		s.AnomalyCount++
		s.ConsecutiveAnomalies++
	} else {
		s.ConsecutiveAnomalies = 0
	}
	return s.ConsecutiveAnomalies
}

// EventCount is the total number of ingested events across both modalities.
func (s *Session) EventCount() int {
	return len(s.KeystrokeEvents) + len(s.PointerEvents)
}

// CurrentRisk returns the composite of the newest sample, or 0 for a fresh
// session.
func (s *Session) CurrentRisk() float64 {
	if len(s.RiskSamples) == 0 {
		return 0
	}
	return s.RiskSamples[len(s.RiskSamples)-1].Composite
}

// Archived is the immutable summary kept after a session closes.
type Archived struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	Reason         EndReason `json:"reason"`
	KeystrokeCount int       `json:"keystrokeCount"`
	PointerCount   int       `json:"pointerCount"`
	SampleCount    int       `json:"sampleCount"`
	AnomalyCount   int       `json:"anomalyCount"`
	MeanRisk       float64   `json:"meanRisk"`
	MaxRisk        float64   `json:"maxRisk"`
	FinalRisk      float64   `json:"finalRisk"`
}

// Duration is the archived session's wall-clock length.
func (a *Archived) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

func summarize(id string, s *Session, reason EndReason, now time.Time) *Archived {
	a := &Archived{
		ID:             id,
		UserID:         s.UserID,
		StartTime:      s.StartTime,
		EndTime:        now,
		Reason:         reason,
		KeystrokeCount: len(s.KeystrokeEvents),
		PointerCount:   len(s.PointerEvents),
		SampleCount:    len(s.RiskSamples),
		AnomalyCount:   s.AnomalyCount,
		FinalRisk:      s.CurrentRisk(),
	}
	if len(s.RiskSamples) > 0 {
		var sum float64
		for _, sample := range s.RiskSamples {
			sum += sample.Composite
			if sample.Composite > a.MaxRisk {
				a.MaxRisk = sample.Composite
			}
		}
		a.MeanRisk = sum / float64(len(s.RiskSamples))
	}
	return a
}
