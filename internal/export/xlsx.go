package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"caisse/internal/ledger"
)

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var columnWidths = map[string]float64{"A": 8, "B": 24, "C": 28, "D": 12, "E": 8, "F": 12}

// XLSX renders rows as a workbook with a single sheet named after the bucket.
// Amounts are written as numbers so the sheet can sum them.
func XLSX(b ledger.Bucket, rows []ledger.Row) (File, error) {
	if b == "" {
		b = ledger.BucketTotal
	}
	sheet := string(b)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return File{}, fmt.Errorf("name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return File{}, fmt.Errorf("header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return File{}, fmt.Errorf("amount style: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return File{}, fmt.Errorf("write header: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "F1", bold); err != nil {
		return File{}, fmt.Errorf("style header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return File{}, err
		}
		line := []any{r.ID, r.Employee.FullName(), r.Service, r.Date, r.Time, r.Amount.InexactFloat64()}
		if err := f.SetSheetRow(sheet, cell, &line); err != nil {
			return File{}, fmt.Errorf("write row %d: %w", r.ID, err)
		}
	}
	if len(rows) > 0 {
		last := fmt.Sprintf("F%d", len(rows)+1)
		if err := f.SetCellStyle(sheet, "F2", last, money); err != nil {
			return File{}, fmt.Errorf("style amounts: %w", err)
		}
	}

	for col, w := range columnWidths {
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return File{}, fmt.Errorf("column width: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return File{}, fmt.Errorf("write workbook: %w", err)
	}
	return File{
		Name:        BaseName(b) + ".xlsx",
		ContentType: XLSXContentType,
		Data:        buf.Bytes(),
	}, nil
}
