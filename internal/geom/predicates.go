package geom

import "fmt"

// Rule selects how a pixel is sampled against a polygon.
type Rule int

const (
	// Center includes a pixel when its centre lies strictly inside the polygon.
	Center Rule = iota
	// AllTouched includes a pixel when its area overlaps the polygon's area.
	// Contact only along a pixel edge or at a corner does not count.
	AllTouched
)

func (r Rule) String() string {
	switch r {
	case Center:
		return "center"
	case AllTouched:
		return "all_touched"
	default:
		return fmt.Sprintf("rule(%d)", int(r))
	}
}

// Pixel is a raster cell in world coordinates. Corners go around the cell in
// order; under an affine transform they form a parallelogram.
type Pixel struct {
	Center  Point
	Corners [4]Point
}

// BBox bounds the pixel's corners.
func (px Pixel) BBox() BBox {
	b, _ := BBoxOfPoints(px.Corners[:]...)
	return b
}

// PointInPolygon is the even-odd ray-casting test with holes subtracted.
// Points on any ring edge are outside.
func PointInPolygon(pt Point, poly *Polygon) bool {
	if !poly.bbox.ContainsPoint(pt) {
		return false
	}
	onEdge := false
	poly.rings(func(r Ring) bool {
		onEdge = onRing(pt, r)
		return !onEdge
	})
	if onEdge {
		return false
	}
	if !ringContains(poly.exterior, pt) {
		return false
	}
	for _, h := range poly.holes {
		if ringContains(h, pt) {
			return false
		}
	}
	return true
}

// Covers applies rule to decide whether px belongs to poly.
func Covers(poly *Polygon, px Pixel, rule Rule) bool {
	if rule != AllTouched {
		return PointInPolygon(px.Center, poly)
	}
	if !BoxesIntersect(poly.bbox, px.BBox()) {
		return false
	}
	if PointInPolygon(px.Center, poly) {
		return true
	}
	// centre is outside or on the boundary, so the areas overlap only if some
	// ring edge enters the pixel's interior
	touched := false
	poly.rings(func(r Ring) bool {
		for i := 0; i+1 < len(r); i++ {
			if segmentEntersQuad(r[i], r[i+1], px.Corners) {
				touched = true
				return false
			}
		}
		return true
	})
	return touched
}

func ringContains(r Ring, p Point) bool {
	in := false
	for i := 0; i+1 < len(r); i++ {
		a, b := r[i], r[i+1]
		if (a.Y > p.Y) != (b.Y > p.Y) {
			x := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if p.X < x {
				in = !in
			}
		}
	}
	return in
}

func onRing(p Point, r Ring) bool {
	for i := 0; i+1 < len(r); i++ {
		if onSegment(p, r[i], r[i+1]) {
			return true
		}
	}
	return false
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func onSegment(p, a, b Point) bool {
	if cross(a, b, p) != 0 {
		return false
	}
	return withinSpan(p, a, b)
}

// withinSpan assumes p is collinear with a-b.
func withinSpan(p, a, b Point) bool {
	return min(a.X, b.X) <= p.X && p.X <= max(a.X, b.X) &&
		min(a.Y, b.Y) <= p.Y && p.Y <= max(a.Y, b.Y)
}

// segmentEntersQuad reports whether a-b passes through the open interior of
// the convex quad q. Contact along q's edges or at its corners does not count.
func segmentEntersQuad(a, b Point, q [4]Point) bool {
	orient := cross(q[0], q[1], q[2])
	if orient == 0 {
		return false
	}
	s := 1.0
	if orient < 0 {
		s = -1
	}
	// f_i(t) = s*cross(q_i, q_i+1, a+t(b-a)) is linear in t; the interior is
	// where every f_i is positive.
	lo, hi := 0.0, 1.0
	for i := range 4 {
		fa := s * cross(q[i], q[(i+1)%4], a)
		fb := s * cross(q[i], q[(i+1)%4], b)
		switch {
		case fa > 0 && fb > 0:
			continue
		case fa <= 0 && fb <= 0:
			return false
		case fa <= 0:
			lo = max(lo, fa/(fa-fb))
		default:
			hi = min(hi, fa/(fa-fb))
		}
		if lo >= hi {
			return false
		}
	}
	return true
}
