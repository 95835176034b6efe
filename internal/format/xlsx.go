package format

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/metrogrid/cityql/internal/domain"
)

// RowsWorkbook renders assembled rows as a single-sheet workbook under the
// given column order. The caller owns closing the file.
func RowsWorkbook(sheet string, columns []string, rows []domain.Row) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	for col, name := range columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to address header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for r, row := range rows {
		for col, name := range columns {
			cell, err := excelize.CoordinatesToCellName(col+1, r+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to address cell: %w", err)
			}
			value := row[name]
			if t, ok := value.(time.Time); ok {
				value = t.Format(time.RFC3339)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to write cell: %w", err)
			}
		}
	}

	return f, nil
}
