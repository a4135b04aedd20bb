// Package harmonic fits the truncated 2nd-order Fourier model to an angular
// response curve by nonlinear least squares. This is the numerical primitive
// shared by the per-group alignment stage and the global pooled fit.
package harmonic

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/archlab/deflect/internal/types"
)

// MinDistinctAngles is the smallest number of distinct angle points that
// determines the five model coefficients.
const MinDistinctAngles = 5

var (
	// ErrInsufficientData indicates fewer than MinDistinctAngles distinct
	// angles were supplied, leaving the system under-determined.
	ErrInsufficientData = errors.New("harmonic: insufficient distinct angle points")

	// ErrNonConvergence indicates the optimizer could not reach the gradient
	// tolerance within the iteration cap.
	ErrNonConvergence = errors.New("harmonic: fit did not converge")
)

// Options bound the least-squares solver.
type Options struct {
	// MaxIterations caps the optimizer's major iterations.
	MaxIterations int

	// GradientTolerance is the convergence threshold on the residual
	// gradient norm.
	GradientTolerance float64
}

// DefaultOptions returns the solver bounds used throughout the pipeline.
func DefaultOptions() Options {
	return Options{
		MaxIterations:     200,
		GradientTolerance: 1e-10,
	}
}

// Fit determines the five Fourier coefficients minimizing the sum of squared
// residuals between the model and the observed means. thetaRad and y must be
// the same length.
//
// The initial guess is the zero vector. This is fixed and documented:
// changing it changes which of several near-equivalent minima an
// ill-conditioned fit lands in, so it is treated as part of the contract.
func Fit(thetaRad, y []float64, opts Options) (types.FitResult, error) {
	if len(thetaRad) != len(y) {
		return types.FitResult{}, fmt.Errorf("harmonic: mismatched input lengths %d and %d", len(thetaRad), len(y))
	}
	if n := countDistinct(thetaRad); n < MinDistinctAngles {
		return types.FitResult{}, fmt.Errorf("%w: got %d, need %d", ErrInsufficientData, n, MinDistinctAngles)
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			var ssr float64
			for i, th := range thetaRad {
				r := evalParams(p, th) - y[i]
				ssr += r * r
			}
			return ssr
		},
		Grad: func(grad, p []float64) {
			for j := range grad {
				grad[j] = 0
			}
			for i, th := range thetaRad {
				r := evalParams(p, th) - y[i]
				grad[0] += 2 * r
				grad[1] += 2 * r * math.Cos(th)
				grad[2] += 2 * r * math.Sin(th)
				grad[3] += 2 * r * math.Cos(2*th)
				grad[4] += 2 * r * math.Sin(2*th)
			}
		},
	}

	settings := &optimize.Settings{
		MajorIterations:   opts.MaxIterations,
		GradientThreshold: opts.GradientTolerance,
	}

	x0 := make([]float64, 5)
	result, err := optimize.Minimize(problem, x0, settings, &optimize.BFGS{})
	if err != nil {
		return types.FitResult{}, fmt.Errorf("%w: %v", ErrNonConvergence, err)
	}
	if !converged(result.Status) {
		return types.FitResult{}, fmt.Errorf("%w: optimizer stopped with status %v", ErrNonConvergence, result.Status)
	}

	x := result.Location.X
	return types.FitResult{A0: x[0], A1: x[1], B1: x[2], A2: x[3], B2: x[4]}, nil
}

// converged reports whether the optimizer terminated at a minimum rather than
// hitting an iteration or evaluation limit.
func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success,
		optimize.FunctionThreshold,
		optimize.FunctionConvergence,
		optimize.GradientThreshold,
		optimize.StepConvergence,
		optimize.MethodConverge:
		return true
	}
	return false
}

func evalParams(p []float64, theta float64) float64 {
	return p[0] +
		p[1]*math.Cos(theta) + p[2]*math.Sin(theta) +
		p[3]*math.Cos(2*theta) + p[4]*math.Sin(2*theta)
}

func countDistinct(theta []float64) int {
	seen := make(map[float64]struct{}, len(theta))
	for _, th := range theta {
		seen[th] = struct{}{}
	}
	return len(seen)
}

// Curve samples the fitted model at n evenly spaced angles over [0, 2π),
// returning the sample angles in degrees alongside the model values.
func Curve(fit types.FitResult, n int) (angleDeg, values []float64) {
	angleDeg = make([]float64, n)
	values = make([]float64, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		angleDeg[i] = theta * 180 / math.Pi
		values[i] = fit.Eval(theta)
	}
	return angleDeg, values
}
