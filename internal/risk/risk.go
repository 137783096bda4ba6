// Package risk turns per-modality anomaly scores into a composite session
// risk score and summarizes its recent history.
//
// The aggregator weighs the keystroke and pointer scores into one composite
// in [0,100]. Window statistics (mean, standard deviation) over trailing
// composites feed the anomaly and drift detector; trend classification feeds
// forensic snapshots. All computations degrade to sentinels (0.0,
// TrendInsufficientData) rather than erroring — they are advisory.
package risk

import (
	"math"

	"github.com/mbd888/warden/internal/behavior"
)

// Default modality weights. They must sum to 1.0; config validation enforces
// this for overrides.
const (
	DefaultWeightKeystroke = 0.6
	DefaultWeightPointer   = 0.4
)

// trendWindow is how many trailing samples the trend classifier inspects.
const trendWindow = 5

// Trend classifies the direction of recent composite risk.
type Trend string

const (
	TrendIncreasing       Trend = "increasing"
	TrendDecreasing       Trend = "decreasing"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// Stats summarizes a window of composite scores.
type Stats struct {
	Mean   float64
	Stddev float64
	Count  int
}

// Window computes population mean and standard deviation over the composites
// of the last n samples. Empty input yields zero stats.
func Window(samples []behavior.RiskSample, n int) Stats {
	if n > len(samples) {
		n = len(samples)
	}
	if n <= 0 {
		return Stats{}
	}
	tail := samples[len(samples)-n:]

	var sum float64
	for _, s := range tail {
		sum += s.Composite
	}
	mean := sum / float64(n)

	var ss float64
	for _, s := range tail {
		d := s.Composite - mean
		ss += d * d
	}
	return Stats{
		Mean:   mean,
		Stddev: math.Sqrt(ss / float64(n)),
		Count:  n,
	}
}

// TrendOf classifies the direction of the trailing composites: the mean of
// the last five samples is compared against the mean of the same window with
// its newest sample dropped. Fewer than two samples cannot express a
// direction.
func TrendOf(samples []behavior.RiskSample) Trend {
	if len(samples) < 2 {
		return TrendInsufficientData
	}

	n := trendWindow
	if n > len(samples) {
		n = len(samples)
	}
	recent := samples[len(samples)-n:]

	var sum float64
	for _, s := range recent {
		sum += s.Composite
	}
	full := sum / float64(n)
	prior := (sum - recent[n-1].Composite) / float64(n-1)

	switch {
	case full > prior:
		return TrendIncreasing
	case full < prior:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
