package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/archlab/deflect/internal/types"
)

// MaxSpecimenSheets caps how many workbook sheets are reshaped; the raw
// workbook carries one sheet per specimen followed by scratch sheets that are
// not measurement data.
const MaxSpecimenSheets = 10

var sheetNumber = regexp.MustCompile(`\d+`)

// ReshapeWorkbook melts a raw wide-format workbook into long-format
// measurement records. Each specimen sheet has a two-row header: trial labels
// ("Measure1", "Measure2", ...) over method labels (AMO/ASTM), with an Angle
// column spanning both rows. The specimen id is the number embedded in the
// sheet name (e.g. "Arch#3"); sheets without one are skipped with a warning.
func ReshapeWorkbook(f *excelize.File, logger *zap.SugaredLogger) ([]types.Measurement, error) {
	sheets := f.GetSheetList()
	if len(sheets) > MaxSpecimenSheets {
		sheets = sheets[:MaxSpecimenSheets]
	}

	var all []types.Measurement
	for _, sheet := range sheets {
		match := sheetNumber.FindString(sheet)
		if match == "" {
			logger.Warnf("cannot find specimen number in sheet name %q, skipping", sheet)
			continue
		}
		specimen, _ := strconv.Atoi(match)

		ms, err := reshapeSheet(f, sheet, specimen)
		if err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sheet, err)
		}
		logger.Infof("reshaped sheet %q: %d measurements for specimen %d", sheet, len(ms), specimen)
		all = append(all, ms...)
	}
	return all, nil
}

// columnSpec describes one deflection column of a wide sheet.
type columnSpec struct {
	trial  int
	method types.Method
}

func reshapeSheet(f *excelize.File, sheet string, specimen int) ([]types.Measurement, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) < 3 {
		return nil, fmt.Errorf("need two header rows and data, got %d rows", len(rows))
	}

	angleCol, specs, err := parseWideHeader(rows[0], rows[1])
	if err != nil {
		return nil, err
	}

	var ms []types.Measurement
	for i, row := range rows[2:] {
		if angleCol >= len(row) || strings.TrimSpace(row[angleCol]) == "" {
			continue // trailing blank row
		}
		angle, err := strconv.ParseFloat(strings.TrimSpace(row[angleCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("data row %d: angle %q: %w", i+1, row[angleCol], err)
		}

		for col, spec := range specs {
			if col >= len(row) || strings.TrimSpace(row[col]) == "" {
				continue // missing trial cell
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
			if err != nil {
				return nil, fmt.Errorf("data row %d: deflection %q: %w", i+1, row[col], err)
			}
			ms = append(ms, types.Measurement{
				Specimen:   specimen,
				AngleDeg:   angle,
				Trial:      spec.trial,
				Method:     spec.method,
				Deflection: v,
			})
		}
	}
	return ms, nil
}

// parseWideHeader resolves the two header rows into the angle column index
// and a map from column index to (trial, method). Merged trial cells appear
// only in their first column, so the trial label is carried forward.
func parseWideHeader(top, sub []string) (angleCol int, specs map[int]columnSpec, err error) {
	angleCol = -1
	specs = make(map[int]columnSpec)

	var carried string
	for col := range top {
		label := strings.TrimSpace(top[col])
		if strings.Contains(label, "Angle") {
			angleCol = col
			carried = ""
			continue
		}
		if label != "" {
			carried = label
		}
		if carried == "" {
			continue
		}

		trialStr := strings.TrimPrefix(carried, "Measure")
		trial, convErr := strconv.Atoi(trialStr)
		if convErr != nil {
			return 0, nil, fmt.Errorf("header column %d: trial label %q", col, carried)
		}

		if col >= len(sub) {
			continue
		}
		method, methodErr := types.ParseMethod(strings.TrimSpace(sub[col]))
		if methodErr != nil {
			return 0, nil, fmt.Errorf("header column %d: %w", col, methodErr)
		}
		specs[col] = columnSpec{trial: trial, method: method}
	}

	if angleCol < 0 {
		return 0, nil, fmt.Errorf("no Angle column found in header")
	}
	if len(specs) == 0 {
		return 0, nil, fmt.Errorf("no measurement columns found in header")
	}
	return angleCol, specs, nil
}
