package anomaly

import (
	"sort"
	"strings"
	"time"

	"github.com/mbd888/warden/internal/behavior"
)

// PatternOutcome says what the registry did with an evaluated signature.
type PatternOutcome string

const (
	// PatternObserved: the signature was counted but remains below the
	// block threshold.
	PatternObserved PatternOutcome = "observed"
	// PatternBlocked: this evaluation pushed the signature over the block
	// threshold and into the blocked set.
	PatternBlocked PatternOutcome = "pattern_blocked"
	// PatternAlreadyBlocked: the signature was blocked before this
	// evaluation; an immediate high-severity signal.
	PatternAlreadyBlocked PatternOutcome = "blocked_pattern"
)

// Evaluation is the result of running pattern analysis at the end of a
// consecutive-anomaly run.
type Evaluation struct {
	Outcome     PatternOutcome `json:"outcome"`
	Signature   string         `json:"signature"`
	Occurrences int            `json:"occurrences"`
}

// EvaluatePattern renders the signature of the session's recent events and
// feeds it through the registry. Already-blocked signatures short-circuit:
// they are reported without touching the occurrence count.
func (d *Detector) EvaluatePattern(keystrokes []behavior.KeystrokeEvent, pointers []behavior.PointerEvent, now time.Time) Evaluation {
	sig := d.Signature(keystrokes, pointers, now)
	if sig == "" {
		return Evaluation{Outcome: PatternObserved, Signature: sig}
	}

	if d.registry.IsBlocked(sig) {
		return Evaluation{
			Outcome:     PatternAlreadyBlocked,
			Signature:   sig,
			Occurrences: d.registry.Count(sig),
		}
	}

	count, newlyBlocked := d.registry.Observe(sig, d.cfg.PatternBlockThreshold)
	outcome := PatternObserved
	if newlyBlocked {
		outcome = PatternBlocked
	}
	return Evaluation{Outcome: outcome, Signature: sig, Occurrences: count}
}

// Signature deterministically encodes the recent event shape: the last
// SignatureEvents keystrokes and the last SignatureEvents pointer events,
// merged into timestamp order and rendered as tokens. When SignatureMaxAge
// is set, events older than that are excluded first.
func (d *Detector) Signature(keystrokes []behavior.KeystrokeEvent, pointers []behavior.PointerEvent, now time.Time) string {
	k := d.cfg.SignatureEvents

	events := make([]behavior.Event, 0, 2*k)
	for _, e := range tailKeystrokes(keystrokes, k) {
		events = append(events, e)
	}
	for _, e := range tailPointers(pointers, k) {
		events = append(events, e)
	}

	if d.cfg.SignatureMaxAge > 0 {
		cutoff := now.Add(-d.cfg.SignatureMaxAge)
		fresh := events[:0]
		for _, e := range events {
			if !e.OccurredAt().Before(cutoff) {
				fresh = append(fresh, e)
			}
		}
		events = fresh
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt().Before(events[j].OccurredAt())
	})

	tokens := make([]string, len(events))
	for i, e := range events {
		tokens[i] = e.Token()
	}
	return strings.Join(tokens, "|")
}

func tailKeystrokes(events []behavior.KeystrokeEvent, n int) []behavior.KeystrokeEvent {
	if len(events) > n {
		return events[len(events)-n:]
	}
	return events
}

func tailPointers(events []behavior.PointerEvent, n int) []behavior.PointerEvent {
	if len(events) > n {
		return events[len(events)-n:]
	}
	return events
}
