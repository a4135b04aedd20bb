package pipeline

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/archlab/deflect/internal/types"
	"github.com/archlab/deflect/pkg/config"
)

func testRunner() *Runner {
	return New(config.Default(), zap.NewNop().Sugar())
}

// specimenMeasurements builds trials for one specimen/method from a response
// function of angle in radians.
func specimenMeasurements(specimen int, method types.Method, angles []float64, trials int, f func(theta float64) float64) []types.Measurement {
	var ms []types.Measurement
	for _, deg := range angles {
		theta := deg * math.Pi / 180
		for trial := 1; trial <= trials; trial++ {
			ms = append(ms, types.Measurement{
				Specimen:   specimen,
				AngleDeg:   deg,
				Trial:      trial,
				Method:     method,
				Deflection: f(theta),
			})
		}
	}
	return ms
}

func eightAngles() []float64 {
	return []float64{0, 45, 90, 135, 180, 225, 270, 315}
}

func TestRunSingleGroup(t *testing.T) {
	ms := specimenMeasurements(1, types.MethodASTM, eightAngles(), 2, func(theta float64) float64 {
		return 10 + 5*math.Cos(theta)
	})

	res, err := testRunner().Run(context.Background(), ms)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if res.Report.ProcessedGroups != 1 {
		t.Fatalf("processed %d groups, want 1", res.Report.ProcessedGroups)
	}
	if len(res.Report.Skipped) != 0 {
		t.Fatalf("unexpected skipped groups: %+v", res.Report.Skipped)
	}

	g := res.Groups[0]
	if math.Abs(g.Fit.A0-10) > 1e-6 || math.Abs(g.Fit.A1-5) > 1e-6 {
		t.Errorf("fit = %+v, want a0=10 a1=5", g.Fit)
	}
	if math.Abs(g.Classification.PeakAngleDeg) > 1e-6 {
		t.Errorf("peak angle = %g, want 0", g.Classification.PeakAngleDeg)
	}
	// Peak already at 0°: aligned angles equal original angles.
	for _, s := range g.Stats {
		if math.Abs(s.AngleAlignedDeg-s.AngleDeg) > 1e-6 {
			t.Errorf("angle %g aligned to %g with zero peak offset", s.AngleDeg, s.AngleAlignedDeg)
		}
	}

	if res.PooledFit == nil {
		t.Fatalf("pooled fit missing: %v", res.PooledErr)
	}
	if math.Abs(res.PooledFit.A0-10) > 1e-6 {
		t.Errorf("pooled a0 = %g, want 10", res.PooledFit.A0)
	}
}

func TestRunSkipsUnderdeterminedGroup(t *testing.T) {
	good := specimenMeasurements(1, types.MethodASTM, eightAngles(), 2, func(theta float64) float64 {
		return 10 + 5*math.Cos(theta)
	})
	// Specimen 2 has only 3 distinct angles: under-determined fit.
	bad := specimenMeasurements(2, types.MethodASTM, []float64{0, 90, 180}, 2, func(theta float64) float64 {
		return 10 + 5*math.Cos(theta)
	})

	res, err := testRunner().Run(context.Background(), append(good, bad...))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if res.Report.ProcessedGroups != 1 {
		t.Errorf("processed %d groups, want 1", res.Report.ProcessedGroups)
	}
	if len(res.Report.Skipped) != 1 {
		t.Fatalf("skipped %d groups, want 1", len(res.Report.Skipped))
	}
	f := res.Report.Skipped[0]
	if f.Key != (types.GroupKey{Specimen: 2, Method: types.MethodASTM}) {
		t.Errorf("skipped key = %v", f.Key)
	}
	if f.Reason != "insufficient data" {
		t.Errorf("skip reason = %q, want %q", f.Reason, "insufficient data")
	}

	// The failed group contributes nothing to the pool; the good group's
	// curve still fits cleanly.
	if res.PooledFit == nil {
		t.Fatalf("pooled fit missing: %v", res.PooledErr)
	}
	if math.Abs(res.PooledFit.A1-5) > 1e-6 {
		t.Errorf("pooled a1 = %g, want 5", res.PooledFit.A1)
	}
}

func TestRunFlagsDegeneratePhase(t *testing.T) {
	// A perfectly flat response has no harmonic content at all.
	ms := specimenMeasurements(3, types.MethodASTM, eightAngles(), 2, func(theta float64) float64 {
		return 42
	})

	res, err := testRunner().Run(context.Background(), ms)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(res.Report.DegeneratePhase) != 1 {
		t.Fatalf("degenerate-phase groups = %d, want 1", len(res.Report.DegeneratePhase))
	}
	// The group is still processed with a zero offset, not skipped.
	if res.Report.ProcessedGroups != 1 {
		t.Errorf("processed %d groups, want 1", res.Report.ProcessedGroups)
	}
	for _, s := range res.Groups[0].Stats {
		if s.AngleAlignedDeg != s.AngleDeg {
			t.Errorf("degenerate group realigned: %g -> %g", s.AngleDeg, s.AngleAlignedDeg)
		}
	}
}

func TestRunCountsSingleTrialCells(t *testing.T) {
	ms := specimenMeasurements(1, types.MethodASTM, eightAngles(), 2, func(theta float64) float64 {
		return 10 + 5*math.Cos(theta)
	})
	// One extra angle measured only once.
	ms = append(ms, types.Measurement{
		Specimen: 1, AngleDeg: 30, Trial: 1, Method: types.MethodASTM,
		Deflection: 10 + 5*math.Cos(30*math.Pi/180),
	})

	res, err := testRunner().Run(context.Background(), ms)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Report.SingleTrialCells != 1 {
		t.Errorf("single-trial cells = %d, want 1", res.Report.SingleTrialCells)
	}
}

func TestRunPooledMethodOnly(t *testing.T) {
	astm := specimenMeasurements(1, types.MethodASTM, eightAngles(), 2, func(theta float64) float64 {
		return 10 + 5*math.Cos(theta)
	})
	// AMO data with a very different shape must not leak into the ASTM pool.
	amo := specimenMeasurements(1, types.MethodAMO, eightAngles(), 2, func(theta float64) float64 {
		return 100 + 50*math.Sin(2*theta)
	})

	res, err := testRunner().Run(context.Background(), append(astm, amo...))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Report.ProcessedGroups != 2 {
		t.Fatalf("processed %d groups, want 2", res.Report.ProcessedGroups)
	}
	if res.PooledFit == nil {
		t.Fatalf("pooled fit missing: %v", res.PooledErr)
	}
	if math.Abs(res.PooledFit.A0-10) > 1e-6 {
		t.Errorf("pooled a0 = %g; AMO data leaked into the ASTM pool", res.PooledFit.A0)
	}
}

func TestRunEmptyInput(t *testing.T) {
	if _, err := testRunner().Run(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ms := specimenMeasurements(1, types.MethodASTM, eightAngles(), 2, func(theta float64) float64 {
		return 10 + 5*math.Cos(theta)
	})
	if _, err := testRunner().Run(ctx, ms); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
