package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/actorflow/pkg/errors"
)

const (
	reportDir  = "decomposed_actor_behavior"
	reportBase = "performance_decomposed_by_actor_behavior"
	sheetName  = "performance"
)

var indexNames = []string{"source", "sink", "actor_behavior"}

// Path returns the CSV location of a dataset's report under root.
func Path(root, dataset string) string {
	return filepath.Join(root, dataset, reportDir, reportBase+".csv")
}

// XLSXPath returns the spreadsheet location of a dataset's report under root.
func XLSXPath(root, dataset string) string {
	return filepath.Join(root, dataset, reportDir, reportBase+".xlsx")
}

// grid lays the report out as text cells: two column header rows, the index
// name row, then one row per report row.
func grid(r *Report) [][]string {
	width := len(indexNames) + len(r.Columns)
	out := make([][]string, 0, len(r.Rows)+3)

	level0 := make([]string, width)
	level1 := make([]string, width)
	names := make([]string, width)
	copy(names, indexNames)
	for i, c := range r.Columns {
		level0[len(indexNames)+i] = c.Level0
		level1[len(indexNames)+i] = c.Level1
	}
	out = append(out, level0, level1, names)

	for _, row := range r.Rows {
		rec := make([]string, 0, width)
		rec = append(rec, row.Source, row.Sink, string(row.Label))
		for _, v := range row.Values {
			rec = append(rec, formatValue(v))
		}
		out = append(out, rec)
	}
	return out
}

// formatValue renders NaN as an empty cell.
func formatValue(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes r in the layout pandas produces for a frame with a
// three-level row index and two-level columns.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(grid(r)); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// SaveCSV writes r to path, creating parent directories. The file is
// replaced atomically.
func SaveCSV(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.ReportWriteFailed(path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return errors.ReportWriteFailed(path, err)
	}
	tmpName := tmp.Name()

	if err := WriteCSV(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.ReportWriteFailed(path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.ReportWriteFailed(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.ReportWriteFailed(path, err)
	}
	return nil
}

// SaveXLSX writes r as a spreadsheet. Numeric cells stay numeric, and
// repeated first-level column headers are merged.
func SaveXLSX(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.ReportWriteFailed(path, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return errors.ReportWriteFailed(path, err)
	}

	rows := grid(r)
	for i, rec := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.ReportWriteFailed(path, err)
		}
		values := make([]any, len(rec))
		for j, v := range rec {
			values[j] = v
		}
		if i >= 3 {
			for j, v := range rows[i][len(indexNames):] {
				if v == "" {
					values[len(indexNames)+j] = nil
					continue
				}
				values[len(indexNames)+j] = r.Rows[i-3].Values[j]
			}
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return errors.ReportWriteFailed(path, err)
		}
	}

	if err := mergeHeaders(f, r); err != nil {
		return errors.ReportWriteFailed(path, err)
	}

	if err := f.SaveAs(path); err != nil {
		return errors.ReportWriteFailed(path, err)
	}
	return nil
}

// mergeHeaders merges runs of equal first-level column headers.
func mergeHeaders(f *excelize.File, r *Report) error {
	offset := len(indexNames) + 1
	for start := 0; start < len(r.Columns); {
		end := start
		for end+1 < len(r.Columns) && r.Columns[end+1].Level0 == r.Columns[start].Level0 {
			end++
		}
		if end > start {
			from, err := excelize.CoordinatesToCellName(offset+start, 1)
			if err != nil {
				return err
			}
			to, err := excelize.CoordinatesToCellName(offset+end, 1)
			if err != nil {
				return err
			}
			if err := f.MergeCell(sheetName, from, to); err != nil {
				return err
			}
		}
		start = end + 1
	}
	return nil
}
