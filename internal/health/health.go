// Package health runs named subsystem probes for liveness and readiness
// reporting.
package health

import (
	"context"
	"sync"
	"time"
)

// Status is one subsystem probe result.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker probes one subsystem. Probes run with a per-check deadline so a
// stuck dependency cannot wedge the health endpoint; implementations must
// respect ctx.
type Checker func(ctx context.Context) Status

// DefaultCheckTimeout bounds a single probe.
const DefaultCheckTimeout = 2 * time.Second

// Registry holds named probes and runs them on demand.
type Registry struct {
	mu      sync.RWMutex
	probes  []probe
	timeout time.Duration
}

type probe struct {
	name  string
	check Checker
}

// NewRegistry creates an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{timeout: DefaultCheckTimeout}
}

// WithTimeout overrides the per-probe deadline.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a named probe.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.probes = append(r.probes, probe{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs every registered probe in registration order and reports
// the aggregate alongside the individual results.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	probes := make([]probe, len(r.probes))
	copy(probes, r.probes)
	timeout := r.timeout
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(probes))

	for i, p := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		statuses[i] = p.check(probeCtx)
		cancel()
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}
