// Package circuitbreaker provides a per-user failure-counting gate for the
// escalation pipeline.
//
// The breaker isolates infrastructure faults from behavioral risk: repeated
// internal failures while executing response actions for a user suppress
// further escalation attempts for that user until a cool-down passes. State
// is derived, not stored — a user's circuit is open exactly while
// failure_count >= threshold and the last failure is younger than the
// timeout — and is downgraded lazily on the next evaluation, with the
// failure count reset, once the timeout elapses. Nothing is persisted across
// restarts.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State is the derived circuit state for a user.
type State int

const (
	StateClosed State = iota // escalation flows through
	StateOpen                // escalation suppressed until cool-down
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var cbStateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "warden",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by from-state and to-state.",
}, []string{"from_state", "to_state"})

func init() {
	prometheus.MustRegister(cbStateTransitions)
}

// entry tracks per-user failure bookkeeping.
type entry struct {
	failures    int
	lastFailure time.Time
}

// Breaker tracks escalation failures per user.
type Breaker struct {
	mu        sync.Mutex
	entries   map[string]*entry
	threshold int
	timeout   time.Duration
	now       func() time.Time
}

// New creates a breaker that opens at threshold failures and cools down
// after timeout.
func New(threshold int, timeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Breaker{
		entries:   make(map[string]*entry),
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Allow evaluates the user's circuit. When open it returns false along with
// the remaining cool-down; the caller surfaces that as a retry-after hint.
// Evaluation is where lazy downgrades happen: once the timeout has elapsed
// since the last failure, the count resets to zero and the circuit closes.
func (b *Breaker) Allow(user string) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[user]
	if !ok {
		return true, 0
	}

	elapsed := b.now().Sub(e.lastFailure)
	if elapsed >= b.timeout {
		if e.failures >= b.threshold {
			cbStateTransitions.WithLabelValues(StateOpen.String(), StateClosed.String()).Inc()
		}
		delete(b.entries, user)
		return true, 0
	}

	if e.failures >= b.threshold {
		return false, b.timeout - elapsed
	}
	return true, 0
}

// RecordFailure counts one escalation failure for the user and stamps the
// failure time.
func (b *Breaker) RecordFailure(user string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[user]
	if !ok {
		e = &entry{}
		b.entries[user] = e
	}

	wasOpen := e.failures >= b.threshold
	e.failures++
	e.lastFailure = b.now()

	if !wasOpen && e.failures >= b.threshold {
		cbStateTransitions.WithLabelValues(StateClosed.String(), StateOpen.String()).Inc()
	}
}

// State derives the current state for a user without mutating bookkeeping.
func (b *Breaker) State(user string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[user]
	if !ok {
		return StateClosed
	}
	if e.failures >= b.threshold && b.now().Sub(e.lastFailure) < b.timeout {
		return StateOpen
	}
	return StateClosed
}

// Failures returns the user's current failure count.
func (b *Breaker) Failures(user string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[user]
	if !ok {
		return 0
	}
	return e.failures
}
