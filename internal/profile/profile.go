// Package profile learns per-user risk baselines from archived sessions.
//
// Baselines are reporting-only: escalation thresholds stay global, and the
// profiler's deviation numbers enrich status responses and forensic
// summaries without changing response decisions.
package profile

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/mbd888/warden/internal/session"
)

// UserBaseline is the learned risk profile for a single user.
type UserBaseline struct {
	UserID       string    `json:"userId"`
	MeanRisk     float64   `json:"meanRisk"`
	StddevRisk   float64   `json:"stddevRisk"`
	SessionCount int       `json:"sessionCount"`
	SampleCount  int       `json:"sampleCount"`
	AnomalyRate  float64   `json:"anomalyRate"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// BaselineStore persists learned baselines.
type BaselineStore interface {
	SaveBaselineBatch(ctx context.Context, baselines []*UserBaseline) error
	GetAllBaselines(ctx context.Context) ([]*UserBaseline, error)
}

// Profiler serves baseline reads from an in-memory cache kept fresh by the
// Timer. Safe for concurrent use.
type Profiler struct {
	mu    sync.RWMutex
	cache map[string]*UserBaseline
}

// NewProfiler creates an empty profiler.
func NewProfiler() *Profiler {
	return &Profiler{cache: make(map[string]*UserBaseline)}
}

// Baseline returns the learned baseline for userID, or nil when none exists.
func (p *Profiler) Baseline(userID string) *UserBaseline {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.cache[userID]
	if !ok {
		return nil
	}
	cp := *b
	return &cp
}

// Deviation reports how far score sits from the user's baseline in stddev
// units. The second return is false when no usable baseline exists.
func (p *Profiler) Deviation(userID string, score float64) (float64, bool) {
	b := p.Baseline(userID)
	if b == nil || b.StddevRisk == 0 {
		return 0, false
	}
	return (score - b.MeanRisk) / b.StddevRisk, true
}

// Refresh merges recomputed baselines into the cache.
func (p *Profiler) Refresh(batch map[string]*UserBaseline) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, b := range batch {
		p.cache[id] = b
	}
}

// Size is the number of cached baselines.
func (p *Profiler) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}

// computeBaseline aggregates a user's archived sessions. Sessions without
// risk samples contribute nothing; it returns nil when no session had any.
func computeBaseline(userID string, archives []*session.Archived, now time.Time) *UserBaseline {
	var means []float64
	var samples, anomalies int
	for _, a := range archives {
		if a.SampleCount == 0 {
			continue
		}
		means = append(means, a.MeanRisk)
		samples += a.SampleCount
		anomalies += a.AnomalyCount
	}
	if len(means) == 0 {
		return nil
	}

	mean, stddev := meanStddev(means)
	return &UserBaseline{
		UserID:       userID,
		MeanRisk:     mean,
		StddevRisk:   stddev,
		SessionCount: len(means),
		SampleCount:  samples,
		AnomalyRate:  float64(anomalies) / float64(samples),
		LastUpdated:  now,
	}
}

// meanStddev returns the mean and population standard deviation.
func meanStddev(values []float64) (float64, float64) {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var varianceSum float64
	for _, v := range values {
		diff := v - mean
		varianceSum += diff * diff
	}
	return mean, math.Sqrt(varianceSum / n)
}
