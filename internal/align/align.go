// Package align chooses a canonical phase reference for each (specimen,
// method) response curve and rotates its angle axis so the peak response sits
// at 0°, making structurally similar but phase-shifted specimens comparable.
package align

import (
	"errors"
	"math"

	"github.com/archlab/deflect/internal/types"
)

// ErrDegeneratePhase indicates the dominant harmonic's amplitude is
// negligible, so atan2 of its coefficients would yield an arbitrary phase.
// The classification still carries a deterministic zero phase so alignment
// can proceed; callers surface the condition in the run report.
var ErrDegeneratePhase = errors.New("align: degenerate phase, dominant harmonic has negligible amplitude")

// degeneracyTol bounds the dominant amplitude, relative to the response
// level, below which the phase is treated as fitting noise rather than
// signal. A least-squares fit of a flat response leaves coefficients at
// machine-noise scale, never exactly zero.
const degeneracyTol = 1e-9

// Order tags which harmonic dominates a group's response.
type Order int

const (
	// FirstOrderDominant marks a single-peaked response (H1 >= H2).
	FirstOrderDominant Order = iota + 1

	// SecondOrderDominant marks a two-peaked, W-shaped response (H2 > H1).
	SecondOrderDominant
)

func (o Order) String() string {
	switch o {
	case FirstOrderDominant:
		return "first-order"
	case SecondOrderDominant:
		return "second-order"
	}
	return "unknown"
}

// Classification couples the dominant-harmonic tag with the phase angle it
// implies, so the phase formula cannot drift apart from the branch that chose
// it.
type Classification struct {
	Order        Order
	PhiRad       float64
	PeakAngleDeg float64
}

// Classify applies the dominant-harmonic rule to a fit.
//
// H2 > H1 selects the second-order branch with φ = atan2(b2, a2)/2; the half
// angle because the second harmonic has period π in θ. Everything else,
// including an exact H1 == H2 tie, takes the first-order branch with
// φ = atan2(b1, a1). The tie falling to first-order is canonical behavior,
// not an accident of the comparison.
func Classify(fit types.FitResult) (Classification, error) {
	var c Classification
	var a, b float64

	if fit.H2() > fit.H1() {
		c.Order = SecondOrderDominant
		a, b = fit.A2, fit.B2
	} else {
		c.Order = FirstOrderDominant
		a, b = fit.A1, fit.B1
	}

	// atan2 of noise-scale coefficients is an arbitrary rotation; force a
	// deterministic zero offset instead. Covers exact zeros too.
	if math.Hypot(a, b) <= degeneracyTol*math.Max(1, math.Abs(fit.A0)) {
		c.PhiRad = 0
		c.PeakAngleDeg = 0
		return c, ErrDegeneratePhase
	}

	if c.Order == SecondOrderDominant {
		c.PhiRad = 0.5 * math.Atan2(b, a)
	} else {
		c.PhiRad = math.Atan2(b, a)
	}
	c.PeakAngleDeg = c.PhiRad * 180 / math.Pi
	return c, nil
}

// Align rotates every statistic in the group by peakAngleDeg, producing new
// augmented records. Input statistics are not modified.
func Align(stats []types.GroupStat, peakAngleDeg float64) []types.AlignedStat {
	aligned := make([]types.AlignedStat, len(stats))
	for i, s := range stats {
		deg := Mod360(s.AngleDeg - peakAngleDeg)
		aligned[i] = types.AlignedStat{
			GroupStat:       s,
			AngleAlignedDeg: deg,
			AngleAlignedRad: deg * math.Pi / 180,
		}
	}
	return aligned
}

// Mod360 wraps an angle in degrees into [0, 360), including negative inputs.
func Mod360(deg float64) float64 {
	m := math.Mod(deg, 360)
	if m < 0 {
		m += 360
	}
	// Adding 360 to a tiny negative remainder rounds to exactly 360, which
	// is outside the half-open interval.
	if m >= 360 {
		m = 0
	}
	return m
}
