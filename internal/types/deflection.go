// Package types contains the shared value types passed between pipeline stages.
// All types here are plain values; stages produce new values rather than
// mutating their inputs.
package types

import (
	"fmt"
	"math"
)

// Method identifies the measurement technique used for a trial.
type Method string

const (
	MethodAMO  Method = "AMO"
	MethodASTM Method = "ASTM"
)

// ParseMethod validates a method label from an input file.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodAMO:
		return MethodAMO, nil
	case MethodASTM:
		return MethodASTM, nil
	}
	return "", fmt.Errorf("unknown measurement method %q", s)
}

// Measurement is a single trial reading: the deflection of one specimen at one
// angle, measured once with one method.
type Measurement struct {
	Specimen   int
	AngleDeg   float64
	Trial      int
	Method     Method
	Deflection float64
}

// GroupKey identifies one (specimen, method) response curve.
type GroupKey struct {
	Specimen int
	Method   Method
}

func (k GroupKey) String() string {
	return fmt.Sprintf("specimen %d/%s", k.Specimen, k.Method)
}

// GroupStat holds the trial aggregate for one (specimen, method, angle) cell.
// When N == 1 the spread statistics are undefined: StdDev, SEM and CI95 hold
// NaN and CIDefined is false. Consumers must branch on CIDefined, never on a
// NaN comparison.
type GroupStat struct {
	GroupKey
	AngleDeg  float64
	Mean      float64
	StdDev    float64
	N         int
	SEM       float64
	CI95      float64
	CIDefined bool
}

// AlignedStat is a GroupStat augmented with the phase-aligned angle. The
// aligned angle is always in [0, 360).
type AlignedStat struct {
	GroupStat
	AngleAlignedDeg float64
	AngleAlignedRad float64
}

// FitResult holds the five coefficients of the truncated 2nd-order Fourier
// model a0 + a1 cos θ + b1 sin θ + a2 cos 2θ + b2 sin 2θ.
type FitResult struct {
	A0, A1, B1, A2, B2 float64
}

// Eval evaluates the model at theta (radians).
func (f FitResult) Eval(theta float64) float64 {
	return f.A0 +
		f.A1*math.Cos(theta) + f.B1*math.Sin(theta) +
		f.A2*math.Cos(2*theta) + f.B2*math.Sin(2*theta)
}

// H1 is the first-harmonic amplitude sqrt(a1²+b1²).
func (f FitResult) H1() float64 {
	return math.Hypot(f.A1, f.B1)
}

// H2 is the second-harmonic amplitude sqrt(a2²+b2²).
func (f FitResult) H2() float64 {
	return math.Hypot(f.A2, f.B2)
}

// ExtremumKind distinguishes peaks from valleys.
type ExtremumKind string

const (
	ExtremumPeak   ExtremumKind = "peak"
	ExtremumValley ExtremumKind = "valley"
)

// Extremum is one annotated point on the globally-pooled fitted curve.
type Extremum struct {
	AngleDeg float64
	Value    float64
	Kind     ExtremumKind
}
