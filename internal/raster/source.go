package raster

import (
	"fmt"

	"github.com/mohammed-shakir/raster-clip/internal/core/model"
)

// PixelSource reads band data by window. Read returns one row-major slice of
// w.Width*w.Height values per band; callers may modify the returned slices.
type PixelSource interface {
	Bands() int
	Read(w Window) ([][]float64, error)
}

// Grid is an in-memory, multi-band PixelSource.
type Grid struct {
	width, height int
	bands         [][]float64
}

// NewGrid wraps row-major band slices of width*height values each. The
// slices are owned by the grid afterwards.
func NewGrid(width, height int, bands ...[]float64) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, model.Invalidf("grid size must be positive (got %dx%d)", width, height)
	}
	if len(bands) == 0 {
		return nil, model.Invalidf("grid needs at least one band")
	}
	for i, b := range bands {
		if len(b) != width*height {
			return nil, model.Invalidf("band %d has %d values, want %d", i, len(b), width*height)
		}
	}
	return &Grid{width: width, height: height, bands: bands}, nil
}

// Constant builds a single-band grid filled with v.
func Constant(width, height int, v float64) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, model.Invalidf("grid size must be positive (got %dx%d)", width, height)
	}
	b := make([]float64, width*height)
	for i := range b {
		b[i] = v
	}
	return NewGrid(width, height, b)
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }
func (g *Grid) Bands() int  { return len(g.bands) }

// At returns the value of band at (col,row).
func (g *Grid) At(band, col, row int) float64 {
	return g.bands[band][row*g.width+col]
}

func (g *Grid) Read(w Window) ([][]float64, error) {
	if !w.Within(g.width, g.height) {
		return nil, fmt.Errorf("read %s outside %dx%d grid: %w", w, g.width, g.height, model.ErrInvalidArgument)
	}
	out := make([][]float64, len(g.bands))
	for bi, band := range g.bands {
		dst := make([]float64, w.Size())
		for r := range w.Height {
			src := band[(w.RowOff+r)*g.width+w.ColOff:]
			copy(dst[r*w.Width:(r+1)*w.Width], src[:w.Width])
		}
		out[bi] = dst
	}
	return out, nil
}
