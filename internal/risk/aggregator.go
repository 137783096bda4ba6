package risk

import (
	"math"
	"time"

	"github.com/mbd888/warden/internal/behavior"
	"github.com/mbd888/warden/internal/scoring"
)

// minScoreEvents is the smallest buffer a scorer is invoked with. Below it a
// modality contributes exactly 0.0 — insufficient data, not an error.
const minScoreEvents = 2

// Aggregator combines per-modality anomaly scores into a composite risk
// sample using fixed weights.
type Aggregator struct {
	keystroke scoring.KeystrokeScorer
	pointer   scoring.PointerScorer
	wk        float64
	wm        float64
}

// NewAggregator creates an aggregator with the given scorers and the default
// weights.
func NewAggregator(ks scoring.KeystrokeScorer, ps scoring.PointerScorer) *Aggregator {
	return &Aggregator{
		keystroke: ks,
		pointer:   ps,
		wk:        DefaultWeightKeystroke,
		wm:        DefaultWeightPointer,
	}
}

// WithWeights overrides the modality weights. Callers are expected to pass
// weights that sum to 1.0; config validation enforces that upstream.
func (a *Aggregator) WithWeights(keystroke, pointer float64) *Aggregator {
	a.wk = keystroke
	a.wm = pointer
	return a
}

// Score produces one risk sample from the session's current event buffers.
// The sample's IsAnomaly flag is left false; the detector classifies it in a
// second pass before it is appended to the session history.
func (a *Aggregator) Score(keystrokes []behavior.KeystrokeEvent, pointers []behavior.PointerEvent, now time.Time) behavior.RiskSample {
	var kr, pr float64
	if len(keystrokes) >= minScoreEvents {
		kr = clampScore(a.keystroke.Score(keystrokes))
	}
	if len(pointers) >= minScoreEvents {
		pr = clampScore(a.pointer.Score(pointers))
	}

	return behavior.RiskSample{
		Timestamp:     now,
		KeystrokeRisk: kr,
		PointerRisk:   pr,
		Composite:     clampScore(a.wk*kr + a.wm*pr),
	}
}

func clampScore(s float64) float64 {
	return math.Max(0, math.Min(100, s))
}
