package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

const (
	defaultSheet = "Report"
	maxColWidth  = 60
)

// WriteExcel writes rs to path as a single-sheet workbook with a styled
// header row.
func WriteExcel(path, sheet string, rs ResultSet) error {
	if sheet == "" {
		sheet = defaultSheet
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("excel: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("excel: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("excel: %w", err)
	}
	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 22})
	if err != nil {
		return fmt.Errorf("excel: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("excel: %w", err)
	}
	// Column widths must be set before the first row.
	for i, w := range columnWidths(rs) {
		if err := sw.SetColWidth(i+1, i+1, w); err != nil {
			return fmt.Errorf("excel: %w", err)
		}
	}

	head := make([]any, len(rs.Columns))
	for i, c := range rs.Columns {
		head[i] = excelize.Cell{StyleID: header, Value: c}
	}
	if err := sw.SetRow("A1", head); err != nil {
		return fmt.Errorf("excel: %w", err)
	}
	for r, row := range rs.Rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return fmt.Errorf("excel: %w", err)
		}
		vals := make([]any, len(row))
		for i, v := range row {
			if _, ok := v.(time.Time); ok {
				vals[i] = excelize.Cell{StyleID: dateStyle, Value: v}
				continue
			}
			vals[i] = v
		}
		if err := sw.SetRow(cell, vals); err != nil {
			return fmt.Errorf("excel: row %d: %w", r+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("excel: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("excel: save %s: %w", path, err)
	}
	return nil
}

func columnWidths(rs ResultSet) []float64 {
	out := make([]float64, len(rs.Columns))
	for i, c := range rs.Columns {
		out[i] = float64(utf8.RuneCountInString(c))
	}
	for _, row := range rs.Rows {
		for i, v := range row {
			if i >= len(out) {
				break
			}
			if n := float64(utf8.RuneCountInString(formatCell(v))); n > out[i] {
				out[i] = n
			}
		}
	}
	for i := range out {
		out[i] += 2
		if out[i] > maxColWidth {
			out[i] = maxColWidth
		}
	}
	return out
}
