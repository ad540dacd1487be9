package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet the XLSX rendition writes to
const SheetName = "Receipts"

// GenerateXLSX renders the same rows as Generate into an XLSX workbook.
// Every cell is written as text so amounts keep their exact formatting.
func GenerateXLSX(records []Record, report Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	if err := writeSheetRow(f, 1, Headers()); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	for i, l := range Lines(records, report) {
		if err := writeSheetRow(f, i+2, l.Values()); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheetRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(SheetName, cell, &cells)
}
