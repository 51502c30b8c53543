package importer

import (
	"strconv"
	"strings"
	"time"
)

// Fixed column layout of the archive workbooks (zero-based):
// A start time, C end time, F machine count, G bench count, J good pieces.
const (
	colStart    = 0
	colEnd      = 2
	colMachines = 5
	colBenches  = 6
	colPieces   = 9
)

// Cell U2 optionally holds an authoritative total-pieces override for the
// whole order.
const (
	numPiecesRow = 1
	numPiecesCol = 20
)

// TaskRow is one candidate work interval extracted from a workbook row.
// Fields that were absent or unparseable stay nil rather than zero.
type TaskRow struct {
	StartAt     *time.Time
	EndAt       *time.Time
	NumMachines *int
	NumBenches  *int
	GoodPieces  *int
	BadPieces   *int
}

func cellAt(grid [][]any, row, col int) any {
	if row >= len(grid) || col >= len(grid[row]) {
		return nil
	}
	return grid[row][col]
}

// cellToInt tolerates numeric-looking text ("3", "3.0"); anything else is nil.
func cellToInt(v any) *int {
	switch c := v.(type) {
	case nil:
		return nil
	case int:
		return &c
	case int64:
		n := int(c)
		return &n
	case float64:
		n := int(c)
		return &n
	case string:
		s := strings.TrimSpace(c)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		n := int(f)
		return &n
	}
	return nil
}

// OrderNumPieces reads the U2 override, if present.
func OrderNumPieces(grid [][]any) *int {
	return cellToInt(cellAt(grid, numPiecesRow, numPiecesCol))
}

// ExtractRows walks the fixed-layout grid and produces task candidates in row
// order. Rows whose five source cells are all empty are skipped. Start and end
// times are anchored on monthStart; an end before its start is assumed to be
// past midnight and moved to the following day. Shifts may span midnight but
// never more than 24 hours.
func ExtractRows(grid [][]any, monthStart time.Time) []TaskRow {
	var rows []TaskRow

	for i := range grid {
		start := cellAt(grid, i, colStart)
		end := cellAt(grid, i, colEnd)
		machines := cellAt(grid, i, colMachines)
		benches := cellAt(grid, i, colBenches)
		pieces := cellAt(grid, i, colPieces)

		if start == nil && end == nil && machines == nil && benches == nil && pieces == nil {
			continue
		}

		row := TaskRow{
			NumMachines: cellToInt(machines),
			NumBenches:  cellToInt(benches),
			GoodPieces:  cellToInt(pieces),
		}

		if tod, ok := NormalizeCellTime(start); ok {
			at := tod.At(monthStart)
			row.StartAt = &at
		}
		if tod, ok := NormalizeCellTime(end); ok {
			at := tod.At(monthStart)
			row.EndAt = &at
		}
		if row.StartAt != nil && row.EndAt != nil && row.EndAt.Before(*row.StartAt) {
			next := row.EndAt.AddDate(0, 0, 1)
			row.EndAt = &next
		}

		// "No defects recorded" is only meaningful when good pieces were
		// recorded at all; otherwise defect tracking stays unset too.
		if row.GoodPieces != nil {
			zero := 0
			row.BadPieces = &zero
		}

		rows = append(rows, row)
	}

	return rows
}
