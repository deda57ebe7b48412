package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"
)

const (
	pdfTitle      = "Database Report"
	pdfRowHeight  = 6.0
	pdfHeadHeight = 7.0
)

// WriteTablePDF renders rs as a landscape A4 table. Only the first maxRows
// rows are drawn (0 = all); a trailing note states how many were left out.
func WriteTablePDF(path string, rs ResultSet, maxRows int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("pdf: %w", err)
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(pdfTitle, true)
	pdf.SetAutoPageBreak(false, 10)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	left, _, right, bottom := pdf.GetMargins()
	ncols := len(rs.Columns)
	if ncols == 0 {
		ncols = 1
	}
	colW := (pageW - left - right) / float64(ncols)

	drawHeader := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(68, 114, 196)
		pdf.SetTextColor(255, 255, 255)
		for _, c := range rs.Columns {
			pdf.CellFormat(colW, pdfHeadHeight, fit(pdf, tr(c), colW), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 12, pdfTitle, "", 1, "C", false, 0, "")
	pdf.Ln(2)
	drawHeader()

	rows := rs.Rows
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	for i, row := range rows {
		if pdf.GetY()+pdfRowHeight > pageH-bottom {
			pdf.AddPage()
			drawHeader()
		}
		if i%2 == 0 {
			pdf.SetFillColor(255, 255, 255)
		} else {
			pdf.SetFillColor(232, 232, 232)
		}
		for c := 0; c < len(rs.Columns); c++ {
			var v any
			if c < len(row) {
				v = row[c]
			}
			pdf.CellFormat(colW, pdfRowHeight, fit(pdf, tr(formatCell(v)), colW), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
	}
	if omitted := len(rs.Rows) - len(rows); omitted > 0 {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, pdfRowHeight, fmt.Sprintf("%d more rows omitted; see the Excel export for the full result.", omitted), "", 1, "L", false, 0, "")
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("pdf: write %s: %w", path, err)
	}
	return nil
}

// fit trims s with an ellipsis until it fits in width (minus cell padding).
// s is already translated to the single-byte core font encoding.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	avail := width - 2
	if pdf.GetStringWidth(s) <= avail {
		return s
	}
	b := []byte(s)
	for len(b) > 0 && pdf.GetStringWidth(string(b)+"...") > avail {
		b = b[:len(b)-1]
	}
	return string(b) + "..."
}
