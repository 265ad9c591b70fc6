// Package clip rasterizes polygon coverage over a raster window and masks the
// window's pixel data with it.
package clip

import (
	"context"
	"fmt"
	"runtime"

	"github.com/mohammed-shakir/raster-clip/internal/core/model"
	"github.com/mohammed-shakir/raster-clip/internal/geom"
	"github.com/mohammed-shakir/raster-clip/internal/raster"
)

type Options struct {
	// Crop limits the output to the window covering the polygons; otherwise
	// the full raster is returned.
	Crop bool
	// AllTouched includes every pixel the polygons touch, not only those
	// whose centre is inside.
	AllTouched bool
	// Filled overwrites pixels outside the mask. When false the pixel data is
	// returned untouched and the mask tells valid pixels apart.
	Filled bool
	// FillValue overrides the raster's no-data value for filling.
	FillValue *float64
}

// DefaultOptions crops and fills with the raster's no-data value, using the
// centre-of-pixel rule.
func DefaultOptions() Options {
	return Options{Crop: true, Filled: true}
}

func (o Options) Rule() geom.Rule {
	if o.AllTouched {
		return geom.AllTouched
	}
	return geom.Center
}

// Result is produced once per Clip call and not modified afterwards.
type Result struct {
	Window    raster.Window
	Mask      *Mask
	Transform raster.Affine
	// Bands holds one row-major slice of Window.Width*Window.Height values per band.
	Bands [][]float64
	// Fill is the value written outside the mask; meaningful when Filled is set.
	Fill   float64
	Filled bool
}

// Shape is (bands, height, width), the layout of the output array.
func (r *Result) Shape() [3]int {
	return [3]int{len(r.Bands), r.Window.Height, r.Window.Width}
}

type Engine struct {
	// Workers bounds the goroutines rasterizing the mask; <= 1 runs inline.
	Workers int
	// MinRowsPerWorker keeps small windows on a single goroutine.
	MinRowsPerWorker int
}

func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{Workers: workers, MinRowsPerWorker: 32}
}

// Clip masks src to the union of candidates. Candidates must already be in
// the raster's coordinate system.
func (e *Engine) Clip(
	ctx context.Context,
	candidates []*geom.Polygon,
	d raster.Descriptor,
	src raster.PixelSource,
	opts Options,
) (*Result, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("clip: %w", model.ErrEmptyGeometry)
	}
	for i, p := range candidates {
		if p == nil {
			return nil, model.Invalidf("candidate %d is nil", i)
		}
	}
	if src == nil {
		return nil, model.Invalidf("pixel source is nil")
	}

	union, _ := geom.UnionBBox(candidates)
	win := d.WindowForBox(union)
	if win.Empty() {
		return nil, fmt.Errorf("clip window for %s: %w", union, model.ErrNoOverlap)
	}
	if !opts.Crop {
		win = d.FullWindow()
	}

	var fill float64
	if opts.Filled {
		switch v, ok := d.NoData(); {
		case opts.FillValue != nil:
			fill = *opts.FillValue
		case ok:
			fill = v
		default:
			return nil, fmt.Errorf("clip: raster has no nodata and no fill value given: %w", model.ErrMissingFillValue)
		}
	}

	mask, err := e.rasterize(ctx, candidates, d, win, opts.Rule())
	if err != nil {
		return nil, err
	}

	bands, err := src.Read(win)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", win, err)
	}
	if len(bands) != src.Bands() {
		return nil, fmt.Errorf("read %s: got %d bands, source reports %d", win, len(bands), src.Bands())
	}
	for i, b := range bands {
		if len(b) != win.Size() {
			return nil, fmt.Errorf("read %s: band %d has %d values, want %d", win, i, len(b), win.Size())
		}
	}
	if opts.Filled {
		applyMask(bands, mask, fill)
	}

	return &Result{
		Window:    win,
		Mask:      mask,
		Transform: d.WindowTransform(win),
		Bands:     bands,
		Fill:      fill,
		Filled:    opts.Filled,
	}, nil
}

func applyMask(bands [][]float64, m *Mask, fill float64) {
	for _, b := range bands {
		for i, in := range m.bits {
			if !in {
				b[i] = fill
			}
		}
	}
}
