package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	telemetry "soilwatch/internal/telemetry/domain"
)

// BuildCSV renders rows as CSV with a header line.
func BuildCSV(rows []telemetry.ExportRow, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header()); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(Fields(row, loc)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildXLSX renders rows into a single "readings" sheet. Channel values are
// written as numbers.
func BuildXLSX(rows []telemetry.ExportRow, loc *time.Location) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "readings"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for col, name := range Header() {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, name)
	}
	for i, row := range rows {
		at := row.CreatedAt.In(loc)
		values := []any{at.Format("2006-01-02"), at.Format("15:04:05"), row.ExternalID, row.DeviceName}
		for _, v := range row.Channels() {
			if v == nil {
				values = append(values, nil)
				continue
			}
			values = append(values, *v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF renders rows as a landscape table.
func BuildPDF(rows []telemetry.ExportRow, loc *time.Location, from, to time.Time) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Sensor Readings")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Range: %s - %s (%s)", from.In(loc).Format("2006-01-02 15:04"), to.In(loc).Format("2006-01-02 15:04"), loc.String()))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Rows: %d", len(rows)))
	pdf.Ln(8)

	widths := []float64{20, 16, 24, 32, 20, 20, 20, 20, 20, 20, 20, 20}
	pdf.SetFont("Arial", "B", 7)
	for i, name := range Header() {
		pdf.CellFormat(widths[i], 6, name, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 7)
	for _, row := range rows {
		for i, field := range Fields(row, loc) {
			align := "R"
			if i < 4 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 5, field, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
