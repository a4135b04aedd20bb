// Package summary aggregates raw trial measurements into per-(specimen,
// method, angle) statistics with 95% confidence half-widths.
package summary

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/archlab/deflect/internal/types"
)

type cellKey struct {
	types.GroupKey
	angleDeg float64
}

// Summarize groups measurements by (specimen, method, angle) and computes the
// trial mean, sample standard deviation, count, standard error and the 95%
// confidence half-width (Student's t, 0.975 quantile, n-1 degrees of freedom).
//
// A cell with a single trial has no defined spread: its StdDev, SEM and CI95
// are NaN and CIDefined is false so downstream stages can treat it as a
// data-quality signal instead of a zero-width interval.
func Summarize(measurements []types.Measurement) []types.GroupStat {
	cells := make(map[cellKey][]float64)
	for _, m := range measurements {
		k := cellKey{
			GroupKey: types.GroupKey{Specimen: m.Specimen, Method: m.Method},
			angleDeg: m.AngleDeg,
		}
		cells[k] = append(cells[k], m.Deflection)
	}

	stats := make([]types.GroupStat, 0, len(cells))
	for k, vals := range cells {
		s := types.GroupStat{
			GroupKey: k.GroupKey,
			AngleDeg: k.angleDeg,
			Mean:     stat.Mean(vals, nil),
			N:        len(vals),
		}
		if s.N > 1 {
			s.StdDev = stat.StdDev(vals, nil)
			s.SEM = s.StdDev / math.Sqrt(float64(s.N))
			s.CI95 = s.SEM * tCritical(s.N-1)
			s.CIDefined = true
		} else {
			s.StdDev = math.NaN()
			s.SEM = math.NaN()
			s.CI95 = math.NaN()
		}
		stats = append(stats, s)
	}

	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.Specimen != b.Specimen {
			return a.Specimen < b.Specimen
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.AngleDeg < b.AngleDeg
	})
	return stats
}

// tCritical returns the 0.975 quantile of Student's t with df degrees of
// freedom, the half-width multiplier for a two-sided 95% interval.
func tCritical(df int) float64 {
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	return dist.Quantile(0.975)
}
