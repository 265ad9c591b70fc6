package raster

import (
	"fmt"
	"math"

	"github.com/mohammed-shakir/raster-clip/internal/core/model"
	"github.com/mohammed-shakir/raster-clip/internal/geom"
)

// Descriptor is the immutable georeferencing of a pixel grid.
type Descriptor struct {
	transform Affine
	inverse   Affine
	width     int
	height    int
	noData    *float64
	crs       string
}

// NewDescriptor validates the transform and dimensions. noData may be nil.
func NewDescriptor(t Affine, width, height int, noData *float64) (Descriptor, error) {
	inv, err := t.Invert()
	if err != nil {
		return Descriptor{}, err
	}
	if width <= 0 || height <= 0 {
		return Descriptor{}, model.Invalidf("raster size must be positive (got %dx%d)", width, height)
	}
	d := Descriptor{transform: t, inverse: inv, width: width, height: height}
	if noData != nil {
		v := *noData
		d.noData = &v
	}
	return d, nil
}

// WithCRS returns a copy labelled with crs. The label is informational; no
// reprojection happens anywhere in this package.
func (d Descriptor) WithCRS(crs string) Descriptor {
	d.crs = crs
	return d
}

func (d Descriptor) Transform() Affine { return d.transform }
func (d Descriptor) Width() int        { return d.width }
func (d Descriptor) Height() int       { return d.height }
func (d Descriptor) CRS() string       { return d.crs }

// NoData returns the no-data value; ok is false when the raster has none.
func (d Descriptor) NoData() (v float64, ok bool) {
	if d.noData == nil {
		return 0, false
	}
	return *d.noData, true
}

// PixelToWorld maps a pixel-corner coordinate to world space.
func (d Descriptor) PixelToWorld(col, row float64) (x, y float64) {
	return d.transform.Apply(col, row)
}

// WorldToPixel maps world coordinates to fractional pixel coordinates.
func (d Descriptor) WorldToPixel(x, y float64) (col, row float64) {
	return d.inverse.Apply(x, y)
}

// PixelCenter is the world coordinate of the centre of pixel (col,row).
func (d Descriptor) PixelCenter(col, row int) geom.Point {
	x, y := d.transform.Apply(float64(col)+0.5, float64(row)+0.5)
	return geom.Point{X: x, Y: y}
}

// Pixel returns pixel (col,row) with its centre and corners in world space.
func (d Descriptor) Pixel(col, row int) geom.Pixel {
	c, r := float64(col), float64(row)
	px := geom.Pixel{Center: d.PixelCenter(col, row)}
	for i, off := range [4][2]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
		x, y := d.transform.Apply(c+off[0], r+off[1])
		px.Corners[i] = geom.Point{X: x, Y: y}
	}
	return px
}

// ExtentBox is the world-space box covering the full grid.
func (d Descriptor) ExtentBox() geom.BBox {
	return d.WindowBox(d.FullWindow())
}

// WindowBox is the world-space box covering the pixels of w.
func (d Descriptor) WindowBox(w Window) geom.BBox {
	c0, r0 := float64(w.ColOff), float64(w.RowOff)
	c1, r1 := c0+float64(w.Width), r0+float64(w.Height)
	pts := make([]geom.Point, 0, 4)
	for _, c := range [4][2]float64{{c0, r0}, {c1, r0}, {c0, r1}, {c1, r1}} {
		x, y := d.transform.Apply(c[0], c[1])
		pts = append(pts, geom.Point{X: x, Y: y})
	}
	b, _ := geom.BBoxOfPoints(pts...)
	return b
}

// FullWindow covers the whole grid.
func (d Descriptor) FullWindow() Window {
	return Window{Width: d.width, Height: d.height}
}

// WindowForBox is the smallest window covering box, clipped to the grid. The
// result has zero size when box misses the grid.
func (d Descriptor) WindowForBox(box geom.BBox) Window {
	minC, minR := math.Inf(1), math.Inf(1)
	maxC, maxR := math.Inf(-1), math.Inf(-1)
	for _, c := range [4][2]float64{
		{box.MinX, box.MinY}, {box.MaxX, box.MinY}, {box.MinX, box.MaxY}, {box.MaxX, box.MaxY},
	} {
		col, row := d.WorldToPixel(c[0], c[1])
		minC, maxC = math.Min(minC, col), math.Max(maxC, col)
		minR, maxR = math.Min(minR, row), math.Max(maxR, row)
	}
	c0 := clampInt(math.Floor(minC), 0, d.width)
	r0 := clampInt(math.Floor(minR), 0, d.height)
	c1 := clampInt(math.Ceil(maxC), 0, d.width)
	r1 := clampInt(math.Ceil(maxR), 0, d.height)
	if c1 <= c0 || r1 <= r0 {
		return Window{ColOff: c0, RowOff: r0}
	}
	return Window{ColOff: c0, RowOff: r0, Width: c1 - c0, Height: r1 - r0}
}

// WindowTransform is the affine transform of the sub-grid w.
func (d Descriptor) WindowTransform(w Window) Affine {
	return d.transform.Translate(float64(w.ColOff), float64(w.RowOff))
}

func (d Descriptor) String() string {
	return fmt.Sprintf("Descriptor(%dx%d, %s)", d.width, d.height, d.transform)
}

func clampInt(v float64, lo, hi int) int {
	if v <= float64(lo) {
		return lo
	}
	if v >= float64(hi) {
		return hi
	}
	return int(v)
}
