// Package ingest reads measurement data: the tidy long-format CSV consumed by
// the pipeline, and the raw wide-format workbook it is reshaped from.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/archlab/deflect/internal/types"
)

// LongHeader is the column order of the tidy long-format table.
var LongHeader = []string{"Arch", "Angle", "Trial", "Method", "Deflection"}

// ReadLong reads a tidy long-format CSV (one row per trial measurement) into
// measurement records. The first row must be the header. Any malformed row
// fails the read with its line number; ingestion is all-or-nothing.
func ReadLong(path string) ([]types.Measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input file: %w", err)
	}
	defer f.Close()
	return ParseLong(f)
}

// ParseLong reads the tidy long-format table from r.
func ParseLong(r io.Reader) ([]types.Measurement, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(LongHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, want := range LongHeader {
		if header[i] != want {
			return nil, fmt.Errorf("unexpected header column %d: got %q, want %q", i, header[i], want)
		}
	}

	var measurements []types.Measurement
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		m, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		measurements = append(measurements, m)
	}
	return measurements, nil
}

func parseRow(row []string) (types.Measurement, error) {
	var m types.Measurement
	var err error

	if m.Specimen, err = strconv.Atoi(row[0]); err != nil {
		return m, fmt.Errorf("specimen id %q: %w", row[0], err)
	}
	if m.Specimen < 1 {
		return m, fmt.Errorf("specimen id must be positive, got %d", m.Specimen)
	}
	if m.AngleDeg, err = strconv.ParseFloat(row[1], 64); err != nil {
		return m, fmt.Errorf("angle %q: %w", row[1], err)
	}
	if m.AngleDeg < 0 || m.AngleDeg >= 360 {
		return m, fmt.Errorf("angle %g outside [0, 360)", m.AngleDeg)
	}
	if m.Trial, err = strconv.Atoi(row[2]); err != nil {
		return m, fmt.Errorf("trial %q: %w", row[2], err)
	}
	if m.Trial < 1 {
		return m, fmt.Errorf("trial must be positive, got %d", m.Trial)
	}
	if m.Method, err = types.ParseMethod(row[3]); err != nil {
		return m, err
	}
	if m.Deflection, err = strconv.ParseFloat(row[4], 64); err != nil {
		return m, fmt.Errorf("deflection %q: %w", row[4], err)
	}
	return m, nil
}
