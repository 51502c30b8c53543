package xlsx

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Reader loads archive workbooks into a plain grid of cells. Values come back
// raw, not display-formatted, so a cell formatted as a time still surfaces as
// its underlying serial number and flows through the time cascade unchanged.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

// Grid reads the active sheet of the workbook at path. Numeric cells become
// float64, empty cells nil, everything else string. Text that merely looks
// numeric stays string: operators typing "9" into a text cell meant 09:00,
// which is not what the numeric reading of 9 gives.
func (r *Reader) Grid(path string) ([][]any, error) {
	const op = "xlsx.Reader.Grid"

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: open %s: %w", op, path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%s: read sheet %q of %s: %w", op, sheet, path, err)
	}

	grid := make([][]any, len(rows))
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, raw := range row {
			if raw == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", op, path, err)
			}
			cellType, err := f.GetCellType(sheet, cell)
			if err != nil {
				return nil, fmt.Errorf("%s: %s cell %s: %w", op, path, cell, err)
			}
			cells[j] = typedCell(raw, cellType)
		}
		grid[i] = cells
	}
	return grid, nil
}

// typedCell keeps strings as strings; only cells the sheet itself marks as
// non-text are parsed as numbers. Untyped cells default to number in the
// xlsx format.
func typedCell(raw string, cellType excelize.CellType) any {
	switch cellType {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString:
		return raw
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return raw
}
