// Package client implements a typed Go client for the warden API.
// This is the foundation for the warden collector SDK.
package client

import (
	"fmt"
	"time"
)

// Risk levels as they appear in assessments and session statuses.
const (
	LevelCritical = "critical"
	LevelHigh     = "high"
	LevelMedium   = "medium"
	LevelLow      = "low"
)

// KeystrokeEvent is the collector wire format for one key press/release
// pair. Times are epoch seconds.
type KeystrokeEvent struct {
	UserID      string  `json:"user_id"`
	Key         string  `json:"key"`
	PressTime   float64 `json:"press_time"`
	ReleaseTime float64 `json:"release_time"`
	Pressure    float64 `json:"pressure,omitempty"`
	X           float64 `json:"x,omitempty"`
	Y           float64 `json:"y,omitempty"`
	Timestamp   float64 `json:"timestamp"`
}

// MouseEvent is the collector wire format for one pointer event. Kind is
// one of move, click, scroll, drag; empty means move.
type MouseEvent struct {
	UserID       string  `json:"user_id"`
	Kind         string  `json:"kind,omitempty"`
	X            float64 `json:"x,omitempty"`
	Y            float64 `json:"y,omitempty"`
	Pressure     float64 `json:"pressure,omitempty"`
	Velocity     float64 `json:"velocity,omitempty"`
	Acceleration float64 `json:"acceleration,omitempty"`
	Timestamp    float64 `json:"timestamp"`
}

// PatternEvaluation reports the outcome of anomaly pattern analysis for
// an event that closed a consecutive-anomaly run.
type PatternEvaluation struct {
	Outcome     string `json:"outcome"`
	Signature   string `json:"signature"`
	Occurrences int    `json:"occurrences"`
}

// Assessment is the engine's verdict on a submitted event.
type Assessment struct {
	UserID               string             `json:"userId"`
	Timestamp            time.Time          `json:"timestamp"`
	RiskScore            float64            `json:"riskScore"`
	KeystrokeRisk        float64            `json:"keystrokeRisk"`
	PointerRisk          float64            `json:"pointerRisk"`
	RiskLevel            string             `json:"riskLevel"`
	IsAnomaly            bool               `json:"isAnomaly"`
	HasDrift             bool               `json:"hasDrift"`
	ConsecutiveAnomalies int                `json:"consecutiveAnomalies"`
	SessionRotated       bool               `json:"sessionRotated,omitempty"`
	Pattern              *PatternEvaluation `json:"pattern,omitempty"`
	ActionsTaken         []string           `json:"actionsTaken"`
	BlockedUntil         *time.Time         `json:"blockedUntil,omitempty"`
}

// UserInfo is directory enrichment attached to a session status.
type UserInfo struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Department  string `json:"department,omitempty"`
	Title       string `json:"title,omitempty"`
	Manager     string `json:"manager,omitempty"`
}

// SessionStatus is the live state of a user's session.
type SessionStatus struct {
	UserID               string     `json:"userId"`
	StartTime            time.Time  `json:"startTime"`
	LastActivity         time.Time  `json:"lastActivity"`
	EventCount           int        `json:"eventCount"`
	CurrentRiskScore     float64    `json:"currentRiskScore"`
	RiskLevel            string     `json:"riskLevel"`
	HasDrift             bool       `json:"hasDrift"`
	AnomalyCount         int        `json:"anomalyCount"`
	ConsecutiveAnomalies int        `json:"consecutiveAnomalies"`
	Monitoring           string     `json:"monitoring"`
	IsBlocked            bool       `json:"isBlocked"`
	BlockedUntil         *time.Time `json:"blockedUntil,omitempty"`
	BaselineDeviation    *float64   `json:"baselineDeviation,omitempty"`
	User                 *UserInfo  `json:"user,omitempty"`
}

// Thresholds are the risk scores at which each level starts.
type Thresholds struct {
	Critical float64 `json:"critical"`
	High     float64 `json:"high"`
	Medium   float64 `json:"medium"`
	Low      float64 `json:"low"`
}

// RiskLevels describes the instance's escalation policy.
type RiskLevels struct {
	Thresholds    Thresholds          `json:"thresholds"`
	Actions       map[string][]string `json:"actions"`
	BlockDuration string              `json:"blockDuration"`
}

// BlockedUser is one blocklist entry.
type BlockedUser struct {
	UserID       string    `json:"userId"`
	BlockedUntil time.Time `json:"blockedUntil"`
}

// SessionArchive summarizes an ended session.
type SessionArchive struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	Reason         string    `json:"reason"`
	KeystrokeCount int       `json:"keystrokeCount"`
	PointerCount   int       `json:"pointerCount"`
	SampleCount    int       `json:"sampleCount"`
	AnomalyCount   int       `json:"anomalyCount"`
	MeanRisk       float64   `json:"meanRisk"`
	MaxRisk        float64   `json:"maxRisk"`
	FinalRisk      float64   `json:"finalRisk"`
}

// EndSessionResult reports the outcome of an end-session call.
type EndSessionResult struct {
	Status  string          `json:"status"`
	Session *SessionArchive `json:"session,omitempty"`
}

// Ended reports whether a live session was actually ended and archived.
func (r *EndSessionResult) Ended() bool {
	return r.Status == "ended"
}

// Baseline is a user's learned behavioral baseline.
type Baseline struct {
	UserID       string    `json:"userId"`
	MeanRisk     float64   `json:"meanRisk"`
	StddevRisk   float64   `json:"stddevRisk"`
	SessionCount int       `json:"sessionCount"`
	SampleCount  int       `json:"sampleCount"`
	AnomalyRate  float64   `json:"anomalyRate"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// APIError is a structured error response from the API.
type APIError struct {
	Status            int        `json:"-"`
	Code              string     `json:"error"`
	Message           string     `json:"message"`
	BlockedUntil      *time.Time `json:"blockedUntil,omitempty"`
	RetryAfterSeconds int        `json:"retryAfterSeconds,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsBlocked reports whether the error is a user-blocked rejection.
func (e *APIError) IsBlocked() bool {
	return e.Code == "user_blocked"
}

// Epoch converts a wall-clock time to the collector wire format's
// epoch-second float. The zero time maps to 0 so the server rejects it.
func Epoch(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}
