// Package geom holds the planar geometry primitives used by the index and the
// clip engine: bounding boxes, polygons with holes, and the coverage
// predicates that decide whether a pixel belongs to a polygon.
package geom

import (
	"fmt"
	"math"

	"github.com/mohammed-shakir/raster-clip/internal/core/model"
)

// Point is a planar coordinate in raster CRS units.
type Point struct {
	X, Y float64
}

// BBox is an axis-aligned bounding box. Degenerate (zero-area) boxes are valid.
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewBBox validates the bounds and returns the box.
func NewBBox(minX, minY, maxX, maxY float64) (BBox, error) {
	b := BBox{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
	if err := b.Validate(); err != nil {
		return BBox{}, err
	}
	return b, nil
}

// Validate reports an invalid-argument error for inverted or NaN bounds.
func (b BBox) Validate() error {
	if math.IsNaN(b.MinX) || math.IsNaN(b.MinY) || math.IsNaN(b.MaxX) || math.IsNaN(b.MaxY) {
		return model.Invalidf("bbox has NaN bound: %s", b)
	}
	if b.MinX > b.MaxX || b.MinY > b.MaxY {
		return model.Invalidf("inverted bbox: %s", b)
	}
	return nil
}

func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// BoxesIntersect is the closed-interval overlap test: touching edges intersect.
func BoxesIntersect(a, b BBox) bool {
	return a.MinX <= b.MaxX && a.MaxX >= b.MinX &&
		a.MinY <= b.MaxY && a.MaxY >= b.MinY
}

func (b BBox) Intersects(o BBox) bool { return BoxesIntersect(b, o) }

// Union gives the smallest box containing both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// Intersection returns the overlap of b and o; ok is false when they are disjoint.
func (b BBox) Intersection(o BBox) (BBox, bool) {
	if !BoxesIntersect(b, o) {
		return BBox{}, false
	}
	return BBox{
		MinX: math.Max(b.MinX, o.MinX),
		MinY: math.Max(b.MinY, o.MinY),
		MaxX: math.Min(b.MaxX, o.MaxX),
		MaxY: math.Min(b.MaxY, o.MaxY),
	}, true
}

func (b BBox) Width() float64  { return b.MaxX - b.MinX }
func (b BBox) Height() float64 { return b.MaxY - b.MinY }
func (b BBox) Area() float64   { return b.Width() * b.Height() }

func (b BBox) Center() Point {
	return Point{X: (b.MinX + b.MaxX) / 2, Y: (b.MinY + b.MaxY) / 2}
}

// ContainsPoint is closed on all sides.
func (b BBox) ContainsPoint(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// emptyBBox is the identity for extend/Union.
func emptyBBox() BBox {
	return BBox{
		MinX: math.Inf(1),
		MinY: math.Inf(1),
		MaxX: math.Inf(-1),
		MaxY: math.Inf(-1),
	}
}

func (b *BBox) extend(p Point) {
	b.MinX = math.Min(b.MinX, p.X)
	b.MinY = math.Min(b.MinY, p.Y)
	b.MaxX = math.Max(b.MaxX, p.X)
	b.MaxY = math.Max(b.MaxY, p.Y)
}

// BBoxOfPoints returns the bounds of pts; ok is false for an empty slice.
func BBoxOfPoints(pts ...Point) (BBox, bool) {
	if len(pts) == 0 {
		return BBox{}, false
	}
	b := emptyBBox()
	for _, p := range pts {
		b.extend(p)
	}
	return b, true
}
