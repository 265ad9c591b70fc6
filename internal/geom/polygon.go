package geom

import (
	"math"
	"slices"

	"github.com/mohammed-shakir/raster-clip/internal/core/model"
)

// Ring is a closed sequence of points (first == last).
type Ring []Point

// Polygon is one exterior ring with zero or more holes. It is immutable once
// built; its bounding box is computed at construction.
type Polygon struct {
	exterior Ring
	holes    []Ring
	bbox     BBox
}

// NewPolygon copies and closes the given rings. Each ring needs at least three
// distinct finite vertices.
func NewPolygon(exterior []Point, holes ...[]Point) (*Polygon, error) {
	ext, err := closeRing(exterior)
	if err != nil {
		return nil, model.Invalidf("exterior ring: %v", err)
	}
	p := &Polygon{exterior: ext, bbox: emptyBBox()}
	for _, pt := range ext {
		p.bbox.extend(pt)
	}
	for i, h := range holes {
		r, err := closeRing(h)
		if err != nil {
			return nil, model.Invalidf("hole %d: %v", i, err)
		}
		// holes lie within the exterior, but a malformed one still widens the box
		for _, pt := range r {
			p.bbox.extend(pt)
		}
		p.holes = append(p.holes, r)
	}
	return p, nil
}

// MustPolygon is NewPolygon for literals in tests and fixtures.
func MustPolygon(exterior []Point, holes ...[]Point) *Polygon {
	p, err := NewPolygon(exterior, holes...)
	if err != nil {
		panic(err)
	}
	return p
}

// Rect builds the axis-aligned rectangle polygon covering b.
func Rect(b BBox) (*Polygon, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return NewPolygon([]Point{
		{b.MinX, b.MinY}, {b.MaxX, b.MinY}, {b.MaxX, b.MaxY}, {b.MinX, b.MaxY},
	})
}

type ringError string

func (e ringError) Error() string { return string(e) }

func closeRing(pts []Point) (Ring, error) {
	if len(pts) == 0 {
		return nil, ringError("no vertices")
	}
	distinct := make(map[Point]struct{}, len(pts))
	for _, p := range pts {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return nil, ringError("non-finite vertex")
		}
		distinct[p] = struct{}{}
	}
	if len(distinct) < 3 {
		return nil, ringError("fewer than 3 distinct vertices")
	}
	r := make(Ring, 0, len(pts)+1)
	r = append(r, pts...)
	if r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r, nil
}

// BBox returns the cached bounding box over all rings.
func (p *Polygon) BBox() BBox { return p.bbox }

// Exterior returns a copy of the exterior ring.
func (p *Polygon) Exterior() Ring { return slices.Clone(p.exterior) }

// NumHoles returns the number of hole rings.
func (p *Polygon) NumHoles() int { return len(p.holes) }

// Hole returns a copy of hole i.
func (p *Polygon) Hole(i int) Ring { return slices.Clone(p.holes[i]) }

// NumVertices counts vertices over all rings, closing points included.
func (p *Polygon) NumVertices() int {
	n := len(p.exterior)
	for _, h := range p.holes {
		n += len(h)
	}
	return n
}

func (p *Polygon) rings(fn func(Ring) bool) {
	if !fn(p.exterior) {
		return
	}
	for _, h := range p.holes {
		if !fn(h) {
			return
		}
	}
}

// PolygonSet is an ordered, index-addressable polygon collection. A polygon's
// identity is its index.
type PolygonSet []*Polygon

func (s PolygonSet) Len() int { return len(s) }

// Subset returns the polygons at idx, in idx order.
func (s PolygonSet) Subset(idx []int) []*Polygon {
	out := make([]*Polygon, 0, len(idx))
	for _, i := range idx {
		out = append(out, s[i])
	}
	return out
}

// UnionBBox is the union of the polygons' boxes; ok is false for no polygons.
func UnionBBox(polys []*Polygon) (BBox, bool) {
	if len(polys) == 0 {
		return BBox{}, false
	}
	b := polys[0].bbox
	for _, p := range polys[1:] {
		b = b.Union(p.bbox)
	}
	return b, true
}
