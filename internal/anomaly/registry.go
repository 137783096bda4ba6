package anomaly

import (
	"sort"
	"sync"
)

// Registry is the process-wide ledger of anomalous pattern signatures. It is
// intentionally append-only: occurrence counts only grow and blocked
// signatures stay blocked until restart, so recidivism is never forgotten.
type Registry struct {
	mu      sync.RWMutex
	counts  map[string]int
	blocked map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counts:  make(map[string]int),
		blocked: make(map[string]struct{}),
	}
}

// Observe increments the signature's occurrence count. When the count
// reaches blockThreshold the signature moves to the blocked set; that
// transition is reported exactly once.
func (r *Registry) Observe(sig string, blockThreshold int) (count int, newlyBlocked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[sig]++
	count = r.counts[sig]

	if _, done := r.blocked[sig]; !done && blockThreshold > 0 && count >= blockThreshold {
		r.blocked[sig] = struct{}{}
		newlyBlocked = true
	}
	return count, newlyBlocked
}

// IsBlocked reports whether the signature is in the blocked set.
func (r *Registry) IsBlocked(sig string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.blocked[sig]
	return ok
}

// Count returns the signature's occurrence count.
func (r *Registry) Count(sig string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counts[sig]
}

// Snapshot is a point-in-time copy of the registry for forensic capture.
type Snapshot struct {
	Blocked []string       `json:"blocked"`
	Counts  map[string]int `json:"counts"`
}

// Snapshot copies the blocked set (sorted) and the frequency table.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Blocked: make([]string, 0, len(r.blocked)),
		Counts:  make(map[string]int, len(r.counts)),
	}
	for sig := range r.blocked {
		snap.Blocked = append(snap.Blocked, sig)
	}
	sort.Strings(snap.Blocked)
	for sig, n := range r.counts {
		snap.Counts[sig] = n
	}
	return snap
}

// Size returns how many distinct signatures have been observed.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.counts)
}
