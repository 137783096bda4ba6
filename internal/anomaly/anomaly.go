// Package anomaly classifies risk samples and tracks recurring anomalous
// behavior shapes.
//
// Two independent judgments are made per session, both windowed over the
// most recent risk samples: a point anomaly (the newest composite is a
// statistical outlier against the prior window) and drift (the window itself
// is elevated or unstable). Consecutive point anomalies escalate to pattern
// analysis: the recent event shape is rendered as a signature and counted in
// a process-wide registry, and shapes that recur too often are blocked for
// the lifetime of the process. Isolated outliers are expected noise; a
// repeating outlier shape indicates deliberate evasive or automated
// behavior.
package anomaly

import (
	"math"
	"time"

	"github.com/mbd888/warden/internal/behavior"
	"github.com/mbd888/warden/internal/risk"
)

// Config tunes the detector. Zero values are replaced by the defaults at
// construction.
type Config struct {
	// WindowSize is how many trailing samples the point-anomaly and drift
	// judgments consider.
	WindowSize int
	// MinEventsForAnalysis is the sample-history floor below which drift is
	// never reported.
	MinEventsForAnalysis int
	// DriftScoreThreshold flags drift when the window mean exceeds it.
	DriftScoreThreshold float64
	// DriftVarianceThreshold flags drift when the window standard deviation
	// exceeds it.
	DriftVarianceThreshold float64
	// ConsecutiveAnomalyThreshold is the run length that triggers pattern
	// analysis.
	ConsecutiveAnomalyThreshold int
	// SignatureEvents is how many trailing events per modality feed a
	// signature.
	SignatureEvents int
	// PatternBlockThreshold is the occurrence count at which a signature
	// moves to the blocked set.
	PatternBlockThreshold int
	// SignatureMaxAge, when positive, excludes events older than this from
	// signature input. Zero keeps the input count-bounded only.
	SignatureMaxAge time.Duration
}

// DefaultConfig returns the stock detector tuning.
func DefaultConfig() Config {
	return Config{
		WindowSize:                  10,
		MinEventsForAnalysis:        10,
		DriftScoreThreshold:         70,
		DriftVarianceThreshold:      20,
		ConsecutiveAnomalyThreshold: 5,
		SignatureEvents:             10,
		PatternBlockThreshold:       3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.MinEventsForAnalysis <= 0 {
		c.MinEventsForAnalysis = d.MinEventsForAnalysis
	}
	if c.DriftScoreThreshold <= 0 {
		c.DriftScoreThreshold = d.DriftScoreThreshold
	}
	if c.DriftVarianceThreshold <= 0 {
		c.DriftVarianceThreshold = d.DriftVarianceThreshold
	}
	if c.ConsecutiveAnomalyThreshold <= 0 {
		c.ConsecutiveAnomalyThreshold = d.ConsecutiveAnomalyThreshold
	}
	if c.SignatureEvents <= 0 {
		c.SignatureEvents = d.SignatureEvents
	}
	if c.PatternBlockThreshold <= 0 {
		c.PatternBlockThreshold = d.PatternBlockThreshold
	}
	return c
}

// Detector applies the windowed judgments and owns the pattern registry.
// Methods are pure with respect to session state; callers apply the
// resulting bookkeeping under their own per-user serialization.
type Detector struct {
	cfg      Config
	registry *Registry
}

// NewDetector creates a detector with its own empty registry.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults(), registry: NewRegistry()}
}

// Config returns the effective tuning after defaulting.
func (d *Detector) Config() Config { return d.cfg }

// Registry exposes the pattern registry for snapshotting.
func (d *Detector) Registry() *Registry { return d.registry }

// IsPointAnomaly reports whether composite sits more than two standard
// deviations from the trailing window's mean. With no prior samples the
// answer is always false, so a cold-started session cannot raise a false
// signal.
func (d *Detector) IsPointAnomaly(prior []behavior.RiskSample, composite float64) bool {
	if len(prior) < 1 {
		return false
	}
	stats := risk.Window(prior, d.cfg.WindowSize)
	return math.Abs(composite-stats.Mean) > 2*stats.Stddev
}

// HasDrift reports sustained elevation or instability of composite risk:
// the trailing window's mean exceeds the score threshold or its standard
// deviation exceeds the variance threshold. Below the analysis floor the
// answer is always false.
func (d *Detector) HasDrift(samples []behavior.RiskSample) bool {
	if len(samples) < d.cfg.MinEventsForAnalysis {
		return false
	}
	stats := risk.Window(samples, d.cfg.WindowSize)
	return stats.Mean > d.cfg.DriftScoreThreshold || stats.Stddev > d.cfg.DriftVarianceThreshold
}
