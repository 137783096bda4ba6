// Package response maps composite risk scores to escalation levels and
// executes each level's action list.
//
// Dispatch for any level runs two pre-checks in order: the user blocklist
// (expired records pruned lazily) and the user's circuit breaker. Action
// failures count against the breaker so that repeated infrastructure faults,
// not user risk, suppress further escalation attempts.
package response

import (
	"fmt"
)

// Level is an escalation tier, ordered critical > high > medium > low.
type Level string

const (
	LevelCritical Level = "critical"
	LevelHigh     Level = "high"
	LevelMedium   Level = "medium"
	LevelLow      Level = "low"
)

// Action is one step of a level's response. Values are stable identifiers
// that appear in API responses, forensic records, and SIEM events.
type Action string

const (
	ActionLockSession        Action = "lock_session"
	ActionCollectForensics   Action = "collect_forensics"
	ActionNotifyAdmin        Action = "notify_admin"
	ActionBlockUser          Action = "block_user"
	ActionIncreaseMonitoring Action = "increase_monitoring"
	ActionMonitor            Action = "monitor"
	ActionNormalMonitoring   Action = "normal_monitoring"
)

// Thresholds are the descending score cutoffs for level classification.
// A score at or above Critical is critical, at or above High is high, at or
// above Medium is medium, and anything below that is low. The Low value is
// informational (reported by the risk-levels endpoint) and does not affect
// classification.
type Thresholds struct {
	Critical float64 `json:"critical"`
	High     float64 `json:"high"`
	Medium   float64 `json:"medium"`
	Low      float64 `json:"low"`
}

// DefaultThresholds returns the standard cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 90, High: 75, Medium: 50, Low: 25}
}

// Validate enforces strict descending order within [0,100].
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"critical": t.Critical,
		"high":     t.High,
		"medium":   t.Medium,
		"low":      t.Low,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("risk threshold %s=%v out of range [0,100]", name, v)
		}
	}
	if !(t.Critical > t.High && t.High > t.Medium && t.Medium > t.Low) {
		return fmt.Errorf("risk thresholds must be strictly descending: critical=%v high=%v medium=%v low=%v",
			t.Critical, t.High, t.Medium, t.Low)
	}
	return nil
}

// LevelFor classifies a composite score.
func (t Thresholds) LevelFor(score float64) Level {
	switch {
	case score >= t.Critical:
		return LevelCritical
	case score >= t.High:
		return LevelHigh
	case score >= t.Medium:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ActionsFor returns the ordered action list for a level. Critical locks the
// session, captures forensics, notifies admins, and block-lists the user;
// high notifies and raises monitoring; medium and low are advisory only.
func ActionsFor(level Level) []Action {
	switch level {
	case LevelCritical:
		return []Action{ActionLockSession, ActionCollectForensics, ActionNotifyAdmin, ActionBlockUser}
	case LevelHigh:
		return []Action{ActionNotifyAdmin, ActionIncreaseMonitoring}
	case LevelMedium:
		return []Action{ActionMonitor}
	default:
		return []Action{ActionNormalMonitoring}
	}
}
