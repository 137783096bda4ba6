// Package scoring provides the per-modality anomaly scorers.
//
// A scorer reduces an ordered window of events from one modality to a scalar
// anomaly score in [0,100]. Scorers are deterministic for a fixed input and
// are only invoked with at least two events; the aggregator substitutes 0.0
// when a modality has insufficient data.
package scoring

import (
	"math"

	"github.com/mbd888/warden/internal/behavior"
)

// KeystrokeScorer scores a window of keystroke events.
type KeystrokeScorer interface {
	Score(events []behavior.KeystrokeEvent) float64
}

// PointerScorer scores a window of pointer events.
type PointerScorer interface {
	Score(events []behavior.PointerEvent) float64
}

// Keystroke scores typing rhythm: how far the newest hold time sits from the
// window's baseline, how dispersed hold times are overall, and whether key
// pressure shifted. Weights sum to 1 so the result stays in [0,100].
type Keystroke struct{}

// Score implements KeystrokeScorer.
func (Keystroke) Score(events []behavior.KeystrokeEvent) float64 {
	if len(events) < 2 {
		return 0
	}

	holds := make([]float64, len(events))
	pressures := make([]float64, len(events))
	for i, e := range events {
		holds[i] = e.HoldTime().Seconds()
		pressures[i] = e.Pressure
	}

	latest := holds[len(holds)-1]
	priorMean, priorStd := meanStd(holds[:len(holds)-1])

	deviation := zDeviation(latest, priorMean, priorStd)
	dispersion := coefficientOfVariation(holds)
	pressureShift := math.Abs(pressures[len(pressures)-1] - mean(pressures[:len(pressures)-1]))

	score := 0.5*clamp(deviation*25) + 0.3*clamp(dispersion*100) + 0.2*clamp(pressureShift*100)
	return clamp(score)
}

// Pointer scores pointer kinematics: deviation of the newest velocity from
// the window baseline plus overall velocity instability. Velocity is taken
// from the event when supplied, otherwise derived from successive positions.
type Pointer struct{}

// Score implements PointerScorer.
func (Pointer) Score(events []behavior.PointerEvent) float64 {
	if len(events) < 2 {
		return 0
	}

	velocities := velocitySeries(events)
	if len(velocities) < 2 {
		return 0
	}

	latest := velocities[len(velocities)-1]
	priorMean, priorStd := meanStd(velocities[:len(velocities)-1])

	deviation := zDeviation(latest, priorMean, priorStd)
	dispersion := coefficientOfVariation(velocities)

	score := 0.6*clamp(deviation*25) + 0.4*clamp(dispersion*100)
	return clamp(score)
}

func velocitySeries(events []behavior.PointerEvent) []float64 {
	out := make([]float64, 0, len(events))
	for i, e := range events {
		if e.Velocity != 0 {
			out = append(out, math.Abs(e.Velocity))
			continue
		}
		if i == 0 {
			continue
		}
		prev := events[i-1]
		dt := e.Timestamp.Sub(prev.Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		dx := e.X - prev.X
		dy := e.Y - prev.Y
		out = append(out, math.Hypot(dx, dy)/dt)
	}
	return out
}

// zDeviation is |x-mean| in standard deviations. A zero-variance baseline
// with a differing observation is treated as a maximal deviation.
func zDeviation(x, mean, std float64) float64 {
	if std == 0 {
		if x == mean {
			return 0
		}
		return 4
	}
	return math.Abs(x-mean) / std
}

func coefficientOfVariation(xs []float64) float64 {
	m, s := meanStd(xs)
	if m == 0 {
		return 0
	}
	return s / math.Abs(m)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func meanStd(xs []float64) (float64, float64) {
	m := mean(xs)
	if len(xs) == 0 {
		return 0, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return m, math.Sqrt(ss / float64(len(xs)))
}

func clamp(x float64) float64 {
	return math.Max(0, math.Min(100, x))
}
