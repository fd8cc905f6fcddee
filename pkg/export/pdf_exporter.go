package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Grid is a weekly timetable laid out as block rows by day columns.
type Grid struct {
	Title    string
	Subtitle string
	Columns  []string
	Rows     []GridRow
}

// GridRow is one time block across all days. Cells may hold several lines.
type GridRow struct {
	Label string
	Cells []string
}

const (
	labelWidth = 32.0
	lineHeight = 4.5
)

// PDFExporter renders timetable grids on landscape A4.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render draws the grid, repeating the header row on every page.
func (e *PDFExporter) Render(grid Grid) ([]byte, error) {
	if len(grid.Columns) == 0 {
		return nil, fmt.Errorf("pdf requires at least one column")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(false, 12)
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()
	left, _, right, bottom := pdf.GetMargins()
	colWidth := (pageW - left - right - labelWidth) / float64(len(grid.Columns))

	if grid.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 8, strings.ToUpper(grid.Title), "", 1, "C", false, 0, "")
	}
	if grid.Subtitle != "" {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(0, 6, grid.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(3)

	header := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		pdf.CellFormat(labelWidth, 8, "", "1", 0, "C", true, 0, "")
		for _, col := range grid.Columns {
			pdf.CellFormat(colWidth, 8, col, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	}
	header()

	for _, row := range grid.Rows {
		if len(row.Cells) != len(grid.Columns) {
			return nil, fmt.Errorf("grid row %q has %d cells, want %d", row.Label, len(row.Cells), len(grid.Columns))
		}
		lines := len(pdf.SplitLines([]byte(row.Label), labelWidth-2))
		for _, cell := range row.Cells {
			if n := len(pdf.SplitLines([]byte(cell), colWidth-2)); n > lines {
				lines = n
			}
		}
		if lines == 0 {
			lines = 1
		}
		height := float64(lines)*lineHeight + 2

		if pdf.GetY()+height > pageH-bottom {
			pdf.AddPage()
			header()
		}

		x, y := pdf.GetXY()
		drawCell(pdf, x, y, labelWidth, height, row.Label, true)
		x += labelWidth
		for _, cell := range row.Cells {
			drawCell(pdf, x, y, colWidth, height, cell, false)
			x += colWidth
		}
		pdf.SetXY(left, y+height)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func drawCell(pdf *gofpdf.Fpdf, x, y, w, h float64, text string, bold bool) {
	pdf.Rect(x, y, w, h, "D")
	pdf.SetXY(x+1, y+1)
	if bold {
		pdf.SetFont("Arial", "B", 8)
	}
	pdf.MultiCell(w-2, lineHeight, text, "", "L", false)
	if bold {
		pdf.SetFont("Arial", "", 8)
	}
}
