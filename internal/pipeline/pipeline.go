// Package pipeline drives the full analysis: trial aggregation, per-group
// harmonic fitting and phase alignment, global pooling, and extremum
// detection. Groups are processed independently; one failing group is
// recorded and excluded rather than aborting the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/archlab/deflect/internal/align"
	"github.com/archlab/deflect/internal/extrema"
	"github.com/archlab/deflect/internal/harmonic"
	"github.com/archlab/deflect/internal/summary"
	"github.com/archlab/deflect/internal/types"
	"github.com/archlab/deflect/pkg/config"
)

// GroupResult holds one (specimen, method) group's fit, classification and
// aligned statistics.
type GroupResult struct {
	Key            types.GroupKey
	Fit            types.FitResult
	Classification align.Classification
	Stats          []types.AlignedStat
}

// GroupFailure records why a group was excluded from the pooled fit.
type GroupFailure struct {
	Key    types.GroupKey
	Reason string
	Err    error
}

// RunReport summarizes data-quality conditions encountered during a run.
type RunReport struct {
	ProcessedGroups int

	// Skipped groups failed to fit and are excluded from the pooled curve.
	Skipped []GroupFailure

	// DegeneratePhase groups were aligned with a forced zero phase offset.
	DegeneratePhase []types.GroupKey

	// SingleTrialCells counts (specimen, method, angle) cells with n=1,
	// whose confidence intervals are undefined.
	SingleTrialCells int
}

// Result is the complete pipeline output handed to exporters and renderers.
type Result struct {
	Summary []types.GroupStat
	Groups  []GroupResult
	Aligned []types.AlignedStat

	// PooledFit and Extrema are nil/empty when the global fit itself failed;
	// PooledErr carries the reason.
	PooledFit *types.FitResult
	Extrema   []types.Extremum
	PooledErr error

	Report RunReport
}

// Runner executes the pipeline with fixed configuration.
type Runner struct {
	cfg    config.Config
	logger *zap.SugaredLogger
}

// New creates a Runner.
func New(cfg config.Config, logger *zap.SugaredLogger) *Runner {
	return &Runner{cfg: cfg, logger: logger}
}

// Run processes a batch of measurements end to end. It returns an error only
// for empty input or cancellation; per-group data-quality failures are
// reported in Result.Report instead.
func (r *Runner) Run(ctx context.Context, measurements []types.Measurement) (*Result, error) {
	if len(measurements) == 0 {
		return nil, errors.New("pipeline: no measurements supplied")
	}

	res := &Result{Summary: summary.Summarize(measurements)}
	for _, s := range res.Summary {
		if !s.CIDefined {
			res.Report.SingleTrialCells++
			r.logger.Debugw("confidence interval undefined for single-trial cell",
				"specimen", s.Specimen, "method", s.Method, "angle", s.AngleDeg)
		}
	}

	opts := harmonic.Options{
		MaxIterations:     r.cfg.Fit.MaxIterations,
		GradientTolerance: r.cfg.Fit.Tolerance,
	}

	for _, key := range groupKeys(res.Summary) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stats := groupStats(res.Summary, key)
		group, err := processGroup(key, stats, opts)
		if err != nil {
			if errors.Is(err, align.ErrDegeneratePhase) {
				// Alignment proceeded with a zero offset; keep the group but
				// flag it.
				res.Report.DegeneratePhase = append(res.Report.DegeneratePhase, key)
				r.logger.Warnf("degenerate phase for %s, aligned with zero offset", key)
			} else {
				res.Report.Skipped = append(res.Report.Skipped, GroupFailure{
					Key:    key,
					Reason: failureReason(err),
					Err:    err,
				})
				r.logger.Warnf("skipping %s: %v", key, err)
				continue
			}
		}

		res.Groups = append(res.Groups, group)
		res.Aligned = append(res.Aligned, group.Stats...)
		res.Report.ProcessedGroups++
	}

	r.pool(res)
	r.logReport(res)
	return res, nil
}

// processGroup fits, classifies and aligns one (specimen, method) group. A
// degenerate phase is returned alongside a usable zero-offset result.
func processGroup(key types.GroupKey, stats []types.GroupStat, opts harmonic.Options) (GroupResult, error) {
	theta := make([]float64, len(stats))
	means := make([]float64, len(stats))
	for i, s := range stats {
		theta[i] = s.AngleDeg * math.Pi / 180
		means[i] = s.Mean
	}

	fit, err := harmonic.Fit(theta, means, opts)
	if err != nil {
		return GroupResult{}, fmt.Errorf("fitting %s: %w", key, err)
	}

	class, classErr := align.Classify(fit)
	return GroupResult{
		Key:            key,
		Fit:            fit,
		Classification: class,
		Stats:          align.Align(stats, class.PeakAngleDeg),
	}, classErr
}

// pool concatenates the aligned angles and means of every surviving group
// with the pooled method, fits the global curve once, and detects its
// extrema. Data is concatenated, not averaged per group first.
func (r *Runner) pool(res *Result) {
	var theta, means []float64
	for _, g := range res.Groups {
		if g.Key.Method != r.cfg.PooledMethod {
			continue
		}
		for _, s := range g.Stats {
			theta = append(theta, s.AngleAlignedRad)
			means = append(means, s.Mean)
		}
	}

	opts := harmonic.Options{
		MaxIterations:     r.cfg.Fit.MaxIterations,
		GradientTolerance: r.cfg.Fit.Tolerance,
	}
	fit, err := harmonic.Fit(theta, means, opts)
	if err != nil {
		res.PooledErr = fmt.Errorf("pooled %s fit: %w", r.cfg.PooledMethod, err)
		r.logger.Warnf("global fit unavailable: %v", res.PooledErr)
		return
	}

	res.PooledFit = &fit
	res.Extrema = extrema.Detect(fit, extrema.Params{
		Samples:          r.cfg.Extrema.CurveSamples,
		MinSeparationDeg: r.cfg.Extrema.MinSeparationDeg,
	})
}

func (r *Runner) logReport(res *Result) {
	r.logger.Infow("pipeline run complete",
		"groups_processed", res.Report.ProcessedGroups,
		"groups_skipped", len(res.Report.Skipped),
		"degenerate_phase_groups", len(res.Report.DegeneratePhase),
		"single_trial_cells", res.Report.SingleTrialCells,
		"extrema", len(res.Extrema),
	)
	for _, f := range res.Report.Skipped {
		r.logger.Warnf("excluded from pooled fit: %s (%s)", f.Key, f.Reason)
	}
}

// failureReason maps a fit error to the reporting taxonomy.
func failureReason(err error) string {
	switch {
	case errors.Is(err, harmonic.ErrInsufficientData):
		return "insufficient data"
	case errors.Is(err, harmonic.ErrNonConvergence):
		return "non-convergence"
	case errors.Is(err, align.ErrDegeneratePhase):
		return "degenerate phase"
	}
	return "error"
}

// groupKeys returns the distinct (specimen, method) keys of a summary in
// deterministic order.
func groupKeys(stats []types.GroupStat) []types.GroupKey {
	seen := make(map[types.GroupKey]struct{})
	var keys []types.GroupKey
	for _, s := range stats {
		if _, ok := seen[s.GroupKey]; !ok {
			seen[s.GroupKey] = struct{}{}
			keys = append(keys, s.GroupKey)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Specimen != keys[j].Specimen {
			return keys[i].Specimen < keys[j].Specimen
		}
		return keys[i].Method < keys[j].Method
	})
	return keys
}

// groupStats extracts one group's statistics, already angle-sorted by the
// summarizer.
func groupStats(stats []types.GroupStat, key types.GroupKey) []types.GroupStat {
	var out []types.GroupStat
	for _, s := range stats {
		if s.GroupKey == key {
			out = append(out, s)
		}
	}
	return out
}
