// Package compose assembles output documents from single-page PDF units:
// page-for-page copies and N-up sheets.
package compose

import (
	"errors"
	"fmt"
)

// Size is a page size in PDF points.
type Size struct {
	W, H float64
}

// A4 is the fixed sheet size for N-up output.
var A4 = Size{W: 595.276, H: 841.890}

// ErrUnsupportedLayout is returned for a cells-per-sheet value with no grid.
var ErrUnsupportedLayout = errors.New("unsupported cells per sheet")

var grids = map[int][2]int{ // cells -> rows, cols
	1: {1, 1},
	2: {2, 1},
	4: {2, 2},
	6: {3, 2},
	9: {3, 3},
}

// Layout is the grid used to pack pages onto sheets.
type Layout struct {
	CellsPerSheet int
	Rows          int
	Cols          int
	Sheet         Size
}

// LayoutFor resolves the grid for k cells per sheet on A4.
func LayoutFor(k int) (Layout, error) {
	g, ok := grids[k]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %d", ErrUnsupportedLayout, k)
	}
	return Layout{CellsPerSheet: k, Rows: g[0], Cols: g[1], Sheet: A4}, nil
}

// Rect is a rectangle with a top-left origin, y growing downwards.
type Rect struct {
	X, Y, W, H float64
}

// Cell returns the target rectangle of slot i: row-major, left to right,
// top to bottom. Cells tile the sheet with no gutters.
func (l Layout) Cell(slot int) Rect {
	row, col := slot/l.Cols, slot%l.Cols
	w := l.Sheet.W / float64(l.Cols)
	h := l.Sheet.H / float64(l.Rows)
	return Rect{X: float64(col) * w, Y: float64(row) * h, W: w, H: h}
}

// Sheets returns how many sheets n pages need.
func (l Layout) Sheets(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + l.CellsPerSheet - 1) / l.CellsPerSheet
}

// Plan partitions positions 0..n-1 of the ordered selection into sheets.
// plan[p][i] is the selection position placed in slot i of sheet p; the
// last sheet may be short and its missing slots stay empty.
func (l Layout) Plan(n int) [][]int {
	plan := make([][]int, l.Sheets(n))
	for p := range plan {
		for i := 0; i < l.CellsPerSheet; i++ {
			pos := p*l.CellsPerSheet + i
			if pos >= n {
				break
			}
			plan[p] = append(plan[p], pos)
		}
	}
	return plan
}
