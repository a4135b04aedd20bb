// Package export writes the pipeline's output tables as flat CSV files.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/archlab/deflect/internal/align"
	"github.com/archlab/deflect/internal/ingest"
	"github.com/archlab/deflect/internal/pipeline"
	"github.com/archlab/deflect/internal/types"
)

// WriteLong writes measurement records in the tidy long-format layout read
// back by ingest.ReadLong.
func WriteLong(path string, measurements []types.Measurement) error {
	return writeCSV(path, ingest.LongHeader, func(w *csv.Writer) error {
		for _, m := range measurements {
			err := w.Write([]string{
				strconv.Itoa(m.Specimen),
				formatFloat(m.AngleDeg),
				strconv.Itoa(m.Trial),
				string(m.Method),
				formatFloat(m.Deflection),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteSummary writes the per-group statistic table. Cells with undefined
// spread (n=1) export empty std/sem/ci95 fields rather than zeros.
func WriteSummary(path string, stats []types.GroupStat) error {
	header := []string{"specimen_id", "method", "angle_degrees", "mean", "std_dev", "n", "sem", "ci95"}
	return writeCSV(path, header, func(w *csv.Writer) error {
		for _, s := range stats {
			row := []string{
				strconv.Itoa(s.Specimen),
				string(s.Method),
				formatFloat(s.AngleDeg),
				formatFloat(s.Mean),
				"", strconv.Itoa(s.N), "", "",
			}
			if s.CIDefined {
				row[4] = formatFloat(s.StdDev)
				row[6] = formatFloat(s.SEM)
				row[7] = formatFloat(s.CI95)
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteAligned writes the aligned statistic table.
func WriteAligned(path string, stats []types.AlignedStat) error {
	header := []string{"specimen_id", "method", "angle_degrees", "mean", "std_dev", "n", "sem", "ci95",
		"angle_aligned", "angle_aligned_radians"}
	return writeCSV(path, header, func(w *csv.Writer) error {
		for _, s := range stats {
			row := []string{
				strconv.Itoa(s.Specimen),
				string(s.Method),
				formatFloat(s.AngleDeg),
				formatFloat(s.Mean),
				"", strconv.Itoa(s.N), "", "",
				formatFloat(s.AngleAlignedDeg),
				formatFloat(s.AngleAlignedRad),
			}
			if s.CIDefined {
				row[4] = formatFloat(s.StdDev)
				row[6] = formatFloat(s.SEM)
				row[7] = formatFloat(s.CI95)
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteFits writes the per-group fit coefficients followed by the pooled fit
// when one exists.
func WriteFits(path string, groups []pipeline.GroupResult, pooled *types.FitResult) error {
	header := []string{"specimen_id", "method", "a0", "a1", "b1", "a2", "b2", "h1", "h2", "dominant", "peak_angle_degrees"}
	return writeCSV(path, header, func(w *csv.Writer) error {
		for _, g := range groups {
			err := w.Write([]string{
				strconv.Itoa(g.Key.Specimen),
				string(g.Key.Method),
				formatFloat(g.Fit.A0),
				formatFloat(g.Fit.A1),
				formatFloat(g.Fit.B1),
				formatFloat(g.Fit.A2),
				formatFloat(g.Fit.B2),
				formatFloat(g.Fit.H1()),
				formatFloat(g.Fit.H2()),
				g.Classification.Order.String(),
				formatFloat(g.Classification.PeakAngleDeg),
			})
			if err != nil {
				return err
			}
		}
		if pooled != nil {
			class, err := align.Classify(*pooled)
			dominant := class.Order.String()
			if errors.Is(err, align.ErrDegeneratePhase) {
				dominant += " (degenerate phase)"
			}
			return w.Write([]string{
				"pooled", "",
				formatFloat(pooled.A0),
				formatFloat(pooled.A1),
				formatFloat(pooled.B1),
				formatFloat(pooled.A2),
				formatFloat(pooled.B2),
				formatFloat(pooled.H1()),
				formatFloat(pooled.H2()),
				dominant,
				formatFloat(class.PeakAngleDeg),
			})
		}
		return nil
	})
}

// WriteExtrema writes the extremum list, already angle-sorted by detection.
func WriteExtrema(path string, extrema []types.Extremum) error {
	header := []string{"angle_degrees", "value", "kind"}
	return writeCSV(path, header, func(w *csv.Writer) error {
		for _, e := range extrema {
			err := w.Write([]string{
				formatFloat(e.AngleDeg),
				formatFloat(e.Value),
				string(e.Kind),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func writeCSV(path string, header []string, body func(*csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := body(w); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
