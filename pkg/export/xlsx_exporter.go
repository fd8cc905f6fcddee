package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	gridSheet    = "Timetable"
	listingSheet = "Assignments"
)

// XLSXExporter renders a workbook with the weekly grid and the flat listing.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render writes the grid to the first sheet and data to the second.
func (e *XLSXExporter) Render(grid Grid, data Dataset) ([]byte, error) {
	if len(grid.Columns) == 0 || len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires grid columns and listing headers")
	}

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", gridSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(listingSheet); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	wrapped, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return nil, fmt.Errorf("cell style: %w", err)
	}

	if err := writeGrid(f, grid, header, wrapped); err != nil {
		return nil, err
	}
	if err := writeListing(f, data, header); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeGrid(f *excelize.File, grid Grid, header, wrapped int) error {
	top := 1
	if grid.Title != "" {
		if err := f.SetCellValue(gridSheet, "A1", grid.Title); err != nil {
			return err
		}
		if err := f.SetCellValue(gridSheet, "A2", grid.Subtitle); err != nil {
			return err
		}
		top = 4
	}

	headerRow := make([]interface{}, 0, len(grid.Columns)+1)
	headerRow = append(headerRow, "")
	for _, col := range grid.Columns {
		headerRow = append(headerRow, col)
	}
	if err := setRow(f, gridSheet, top, headerRow, header); err != nil {
		return err
	}

	for i, row := range grid.Rows {
		if len(row.Cells) != len(grid.Columns) {
			return fmt.Errorf("grid row %d has %d cells, want %d", i, len(row.Cells), len(grid.Columns))
		}
		values := make([]interface{}, 0, len(row.Cells)+1)
		values = append(values, row.Label)
		for _, cell := range row.Cells {
			values = append(values, cell)
		}
		if err := setRow(f, gridSheet, top+1+i, values, wrapped); err != nil {
			return err
		}
	}

	last, err := excelize.ColumnNumberToName(len(grid.Columns) + 1)
	if err != nil {
		return err
	}
	if err := f.SetColWidth(gridSheet, "A", "A", 16); err != nil {
		return err
	}
	return f.SetColWidth(gridSheet, "B", last, 28)
}

func writeListing(f *excelize.File, data Dataset, header int) error {
	headers := make([]interface{}, len(data.Headers))
	for i, h := range data.Headers {
		headers[i] = h
	}
	if err := setRow(f, listingSheet, 1, headers, header); err != nil {
		return err
	}
	for i, row := range data.Rows {
		if len(row) != len(data.Headers) {
			return fmt.Errorf("listing row %d has %d fields, want %d", i, len(row), len(data.Headers))
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := setRow(f, listingSheet, i+2, values, 0); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}, style int) error {
	start, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, start, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	if style == 0 {
		return nil
	}
	end, err := excelize.CoordinatesToCellName(len(values), row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, start, end, style)
}
