// Package extrema locates the annotated peaks and valleys of the globally
// pooled fitted curve.
package extrema

import (
	"sort"

	"github.com/archlab/deflect/internal/harmonic"
	"github.com/archlab/deflect/internal/types"
)

// Params controls curve sampling and extremum suppression.
type Params struct {
	// Samples is the number of evenly spaced curve samples over [0°, 360°).
	Samples int

	// MinSeparationDeg is the minimum angular distance between retained
	// extrema of the same kind. It suppresses closely spaced local wiggles
	// from sampling noise. An empirically tuned constant with no physical
	// derivation, so it stays configurable.
	MinSeparationDeg float64
}

// DefaultParams matches the resolution and suppression window the analysis
// was tuned with: 1200 samples and a 60° window (200 samples at that
// resolution).
func DefaultParams() Params {
	return Params{
		Samples:          1200,
		MinSeparationDeg: 60,
	}
}

// Detect samples the fitted curve and returns up to the two highest peaks and
// the two deepest valleys, sorted by angle ascending. If fewer are found,
// only those found are reported.
func Detect(fit types.FitResult, p Params) []types.Extremum {
	angleDeg, values := harmonic.Curve(fit, p.Samples)

	minDist := int(p.MinSeparationDeg / 360 * float64(p.Samples))
	if minDist < 1 {
		minDist = 1
	}

	peaks := localMaxima(values)
	peaks = suppressByDistance(peaks, values, minDist, false)
	peaks = topByValue(peaks, values, 2, false)

	negated := make([]float64, len(values))
	for i, v := range values {
		negated[i] = -v
	}
	valleys := localMaxima(negated)
	valleys = suppressByDistance(valleys, values, minDist, true)
	valleys = topByValue(valleys, values, 2, true)

	out := make([]types.Extremum, 0, len(peaks)+len(valleys))
	for _, i := range peaks {
		out = append(out, types.Extremum{AngleDeg: angleDeg[i], Value: values[i], Kind: types.ExtremumPeak})
	}
	for _, i := range valleys {
		out = append(out, types.Extremum{AngleDeg: angleDeg[i], Value: values[i], Kind: types.ExtremumValley})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AngleDeg < out[j].AngleDeg })
	return out
}

// localMaxima returns the indices of samples strictly greater than both
// neighbors (scipy.signal.find_peaks compatible: plateaus report their left
// midpoint, endpoints are never peaks).
func localMaxima(v []float64) []int {
	var idx []int
	i := 1
	for i < len(v)-1 {
		if v[i] <= v[i-1] {
			i++
			continue
		}
		if v[i] > v[i+1] {
			idx = append(idx, i)
			i++
			continue
		}
		if v[i] == v[i+1] {
			// Plateau: scan to its right edge.
			j := i
			for j < len(v)-1 && v[j+1] == v[i] {
				j++
			}
			if j < len(v)-1 && v[j+1] < v[i] {
				idx = append(idx, (i+j)/2)
			}
			i = j + 1
			continue
		}
		i++
	}
	return idx
}

// suppressByDistance keeps extrema in priority order (most extreme first),
// discarding any candidate within minDist samples of one already kept. This
// mirrors scipy.signal.find_peaks' distance filter.
func suppressByDistance(candidates []int, values []float64, minDist int, valleys bool) []int {
	order := append([]int(nil), candidates...)
	sort.SliceStable(order, func(i, j int) bool {
		a, b := values[order[i]], values[order[j]]
		if valleys {
			return a < b
		}
		return a > b
	})

	kept := make([]int, 0, len(order))
	for _, c := range order {
		ok := true
		for _, k := range kept {
			d := c - k
			if d < 0 {
				d = -d
			}
			if d < minDist {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, c)
		}
	}
	sort.Ints(kept)
	return kept
}

// topByValue retains the n most extreme candidates. Equal values keep their
// order of detection (ascending sample index).
func topByValue(candidates []int, values []float64, n int, valleys bool) []int {
	order := append([]int(nil), candidates...)
	sort.SliceStable(order, func(i, j int) bool {
		a, b := values[order[i]], values[order[j]]
		if valleys {
			return a < b
		}
		return a > b
	})
	if len(order) > n {
		order = order[:n]
	}
	sort.Ints(order)
	return order
}
