package compose

import (
	"fmt"
	"strconv"
	"strings"
)

// Fit selects how a page is scaled into its cell.
type Fit int

const (
	// FitStretch scales each axis independently to fill the cell exactly.
	FitStretch Fit = iota
	// FitContain keeps the aspect ratio and centres the page in the cell.
	FitContain
)

func (f Fit) String() string {
	if f == FitContain {
		return "contain"
	}
	return "stretch"
}

// ParseFit maps a config value to a Fit.
func ParseFit(s string) (Fit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stretch":
		return FitStretch, nil
	case "contain":
		return FitContain, nil
	default:
		return FitStretch, fmt.Errorf("unknown fit %q", s)
	}
}

// Box is the visible area of a source page in its own user space.
type Box struct {
	LLX, LLY float64
	W, H     float64
	Rotate   int
}

func normRotate(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r
}

// Displayed returns the width and height the page shows with its rotation applied.
func (b Box) Displayed() (float64, float64) {
	switch normRotate(b.Rotate) {
	case 90, 270:
		return b.H, b.W
	default:
		return b.W, b.H
	}
}

// Matrix is a PDF transformation [a b c d e f].
type Matrix [6]float64

// Apply maps a point through the matrix.
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

func (m Matrix) String() string {
	parts := make([]string, len(m))
	for i, v := range m {
		parts[i] = num(v)
	}
	return strings.Join(parts, " ")
}

func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		s = "0"
	}
	return s
}

// Placement returns the matrix that draws box (honouring its /Rotate) into
// cell on a sheet of height sheetH.
func Placement(box Box, cell Rect, sheetH float64, fit Fit) Matrix {
	dw, dh := box.Displayed()
	if dw <= 0 || dh <= 0 {
		return Matrix{1, 0, 0, 1, cell.X, sheetH - cell.Y - cell.H}
	}
	sx, sy := cell.W/dw, cell.H/dh
	tx, ty := cell.X, sheetH-cell.Y-cell.H
	if fit == FitContain {
		s := sx
		if sy < s {
			s = sy
		}
		tx += (cell.W - dw*s) / 2
		ty += (cell.H - dh*s) / 2
		sx, sy = s, s
	}

	llx, lly, bw, bh := box.LLX, box.LLY, box.W, box.H
	switch normRotate(box.Rotate) {
	case 90:
		return Matrix{0, -sy, sx, 0, tx - sx*lly, ty + sy*(llx+bw)}
	case 180:
		return Matrix{-sx, 0, 0, -sy, tx + sx*(llx+bw), ty + sy*(lly+bh)}
	case 270:
		return Matrix{0, sy, -sx, 0, tx + sx*(lly+bh), ty - sy*llx}
	default:
		return Matrix{sx, 0, 0, sy, tx - sx*llx, ty - sy*lly}
	}
}
