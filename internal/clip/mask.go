package clip

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/raster-clip/internal/geom"
	"github.com/mohammed-shakir/raster-clip/internal/raster"
)

// Mask is a row-major boolean grid; true marks pixels covered by at least
// one polygon.
type Mask struct {
	width, height int
	bits          []bool
}

func newMask(width, height int) *Mask {
	return &Mask{width: width, height: height, bits: make([]bool, width*height)}
}

func (m *Mask) Width() int  { return m.width }
func (m *Mask) Height() int { return m.height }

// At reports coverage of the window-relative pixel (col,row).
func (m *Mask) At(col, row int) bool { return m.bits[row*m.width+col] }

// Count is the number of covered pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// Rows renders each row as a string of '0' and '1'.
func (m *Mask) Rows() []string {
	out := make([]string, m.height)
	var sb strings.Builder
	for r := range m.height {
		sb.Reset()
		sb.Grow(m.width)
		for _, b := range m.bits[r*m.width : (r+1)*m.width] {
			if b {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		out[r] = sb.String()
	}
	return out
}

// footprint is a candidate with the window-relative pixel span of its box.
type footprint struct {
	poly   *geom.Polygon
	c0, c1 int
	r0, r1 int
}

func (e *Engine) rasterize(
	ctx context.Context,
	candidates []*geom.Polygon,
	d raster.Descriptor,
	win raster.Window,
	rule geom.Rule,
) (*Mask, error) {
	mask := newMask(win.Width, win.Height)

	fps := make([]footprint, 0, len(candidates))
	for _, p := range candidates {
		// any pixel whose area overlaps p lies inside its box's floor/ceil
		// span, which the crop window already contains
		pw := d.WindowForBox(p.BBox()).Intersect(win)
		if pw.Empty() {
			continue
		}
		c0, r0 := pw.ColOff-win.ColOff, pw.RowOff-win.RowOff
		fps = append(fps, footprint{poly: p, c0: c0, c1: c0 + pw.Width, r0: r0, r1: r0 + pw.Height})
	}
	if len(fps) == 0 {
		return mask, nil
	}

	workers := e.Workers
	minRows := max(e.MinRowsPerWorker, 1)
	if n := (win.Height + minRows - 1) / minRows; n < workers {
		workers = n
	}
	if workers <= 1 {
		if err := fillRows(ctx, mask, fps, d, win, rule, 0, win.Height); err != nil {
			return nil, err
		}
		return mask, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	step := (win.Height + workers - 1) / workers
	for lo := 0; lo < win.Height; lo += step {
		hi := min(lo+step, win.Height)
		g.Go(func() error {
			return fillRows(gctx, mask, fps, d, win, rule, lo, hi)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mask, nil
}

// fillRows writes mask rows [lo,hi); concurrent calls own disjoint row ranges.
func fillRows(
	ctx context.Context,
	mask *Mask,
	fps []footprint,
	d raster.Descriptor,
	win raster.Window,
	rule geom.Rule,
	lo, hi int,
) error {
	for r := lo; r < hi; r++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := mask.bits[r*mask.width : (r+1)*mask.width]
		for _, fp := range fps {
			if r < fp.r0 || r >= fp.r1 {
				continue
			}
			for c := fp.c0; c < fp.c1; c++ {
				if row[c] {
					continue
				}
				col, rr := win.ColOff+c, win.RowOff+r
				var px geom.Pixel
				if rule == geom.AllTouched {
					px = d.Pixel(col, rr)
				} else {
					px.Center = d.PixelCenter(col, rr)
				}
				if geom.Covers(fp.poly, px, rule) {
					row[c] = true
				}
			}
		}
	}
	return nil
}
