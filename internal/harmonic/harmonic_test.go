package harmonic

import (
	"errors"
	"math"
	"testing"

	"github.com/archlab/deflect/internal/types"
)

// evenAngles returns n evenly spaced angles in radians over [0, 2π).
func evenAngles(n int) []float64 {
	theta := make([]float64, n)
	for i := range theta {
		theta[i] = 2 * math.Pi * float64(i) / float64(n)
	}
	return theta
}

func TestFitPureFirstHarmonic(t *testing.T) {
	// 8 angles evenly spaced over 0-315° in 45° steps, deflection exactly
	// 10 + 5cos(θ), no noise.
	theta := evenAngles(8)
	y := make([]float64, len(theta))
	for i, th := range theta {
		y[i] = 10 + 5*math.Cos(th)
	}

	fit, err := Fit(theta, y, DefaultOptions())
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}

	want := types.FitResult{A0: 10, A1: 5}
	checkCoefficients(t, fit, want, 1e-6)

	if fit.H1() <= fit.H2() {
		t.Errorf("expected first harmonic dominant, got H1=%g H2=%g", fit.H1(), fit.H2())
	}
}

func TestFitSecondHarmonic(t *testing.T) {
	// W-shaped response 7 + 3cos(2θ) at 12 evenly spaced angles.
	theta := evenAngles(12)
	y := make([]float64, len(theta))
	for i, th := range theta {
		y[i] = 7 + 3*math.Cos(2*th)
	}

	fit, err := Fit(theta, y, DefaultOptions())
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}

	want := types.FitResult{A0: 7, A2: 3}
	checkCoefficients(t, fit, want, 1e-6)

	if fit.H2() <= fit.H1() {
		t.Errorf("expected second harmonic dominant, got H1=%g H2=%g", fit.H1(), fit.H2())
	}
}

func TestFitPhaseShifted(t *testing.T) {
	// 10 + 5cos(θ - 60°) decomposes into a1 = 5cos60°, b1 = 5sin60°.
	shift := 60 * math.Pi / 180
	theta := evenAngles(8)
	y := make([]float64, len(theta))
	for i, th := range theta {
		y[i] = 10 + 5*math.Cos(th-shift)
	}

	fit, err := Fit(theta, y, DefaultOptions())
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}

	want := types.FitResult{A0: 10, A1: 5 * math.Cos(shift), B1: 5 * math.Sin(shift)}
	checkCoefficients(t, fit, want, 1e-6)
}

func TestFitInsufficientData(t *testing.T) {
	tests := []struct {
		name  string
		theta []float64
		y     []float64
	}{
		{
			name:  "three distinct angles",
			theta: []float64{0, 1, 2},
			y:     []float64{1, 2, 3},
		},
		{
			name:  "duplicated angles count once",
			theta: []float64{0, 0, 1, 1, 2, 2, 3, 3},
			y:     []float64{1, 1, 2, 2, 3, 3, 4, 4},
		},
		{
			name:  "empty input",
			theta: nil,
			y:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.theta, tt.y, DefaultOptions())
			if !errors.Is(err, ErrInsufficientData) {
				t.Errorf("expected ErrInsufficientData, got %v", err)
			}
		})
	}
}

func TestFitMismatchedLengths(t *testing.T) {
	_, err := Fit([]float64{0, 1, 2, 3, 4}, []float64{1, 2}, DefaultOptions())
	if err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}

func TestFitDeterministic(t *testing.T) {
	theta := evenAngles(10)
	y := make([]float64, len(theta))
	for i, th := range theta {
		y[i] = 3 + 2*math.Cos(th) - 1.5*math.Sin(2*th)
	}

	first, err := Fit(theta, y, DefaultOptions())
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	second, err := Fit(theta, y, DefaultOptions())
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	if first != second {
		t.Errorf("repeated fits differ: %+v vs %+v", first, second)
	}
}

func TestEvalPeriodicity(t *testing.T) {
	fit := types.FitResult{A0: 2, A1: 1.5, B1: -0.5, A2: 0.25, B2: 3}
	for _, theta := range []float64{0, 0.1, 1, math.Pi, 5, -2.3} {
		a := fit.Eval(theta)
		b := fit.Eval(theta + 2*math.Pi)
		if math.Abs(a-b) > 1e-9 {
			t.Errorf("Eval(%g)=%g but Eval(+2π)=%g", theta, a, b)
		}
	}
}

func TestCurve(t *testing.T) {
	fit := types.FitResult{A0: 1, A1: 2}
	angleDeg, values := Curve(fit, 360)
	if len(angleDeg) != 360 || len(values) != 360 {
		t.Fatalf("expected 360 samples, got %d/%d", len(angleDeg), len(values))
	}
	if angleDeg[0] != 0 {
		t.Errorf("first sample at %g°, want 0°", angleDeg[0])
	}
	if math.Abs(values[0]-3) > 1e-12 {
		t.Errorf("value at 0° = %g, want 3", values[0])
	}
	if math.Abs(angleDeg[359]-359) > 1e-9 {
		t.Errorf("last sample at %g°, want 359°", angleDeg[359])
	}
}

func checkCoefficients(t *testing.T, got, want types.FitResult, epsilon float64) {
	t.Helper()
	pairs := []struct {
		name      string
		got, want float64
	}{
		{"a0", got.A0, want.A0},
		{"a1", got.A1, want.A1},
		{"b1", got.B1, want.B1},
		{"a2", got.A2, want.A2},
		{"b2", got.B2, want.B2},
	}
	for _, p := range pairs {
		if math.Abs(p.got-p.want) > epsilon {
			t.Errorf("%s = %g, want %g (±%g)", p.name, p.got, p.want, epsilon)
		}
	}
}
