package spatialindex

import "math"

const (
	axisX = 0
	axisY = 1
)

// twice the centre along axis; the factor does not change ordering
func key(e entry, axis int) float64 {
	if axis == axisX {
		return e.box.MinX + e.box.MaxX
	}
	return e.box.MinY + e.box.MaxY
}

func spreadAxis(es []entry) int {
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, e := range es {
		x, y := key(e, axisX), key(e, axisY)
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	if maxY-minY > maxX-minX {
		return axisY
	}
	return axisX
}

// multiSelect rearranges es so that every position in bounds (ascending)
// separates smaller keys on the left from larger keys on the right.
func multiSelect(es []entry, bounds []int, axis int) {
	if len(bounds) == 0 {
		return
	}
	m := len(bounds) / 2
	k := bounds[m]
	nthElement(es, k, axis)
	multiSelect(es[:k], bounds[:m], axis)

	right := make([]int, 0, len(bounds)-m-1)
	for _, b := range bounds[m+1:] {
		right = append(right, b-k)
	}
	multiSelect(es[k:], right, axis)
}

// nthElement is a three-way quickselect: afterwards es[k] holds the k-th
// smallest key, with no larger key before it and no smaller key after it.
func nthElement(es []entry, k, axis int) {
	lo, hi := 0, len(es)-1
	for lo < hi {
		p := medianOfThree(key(es[lo], axis), key(es[lo+(hi-lo)/2], axis), key(es[hi], axis))
		lt, i, gt := lo, lo, hi
		for i <= gt {
			switch c := key(es[i], axis); {
			case c < p:
				es[lt], es[i] = es[i], es[lt]
				lt++
				i++
			case c > p:
				es[i], es[gt] = es[gt], es[i]
				gt--
			default:
				i++
			}
		}
		switch {
		case k < lt:
			hi = lt - 1
		case k > gt:
			lo = gt + 1
		default:
			return
		}
	}
}

func medianOfThree(a, b, c float64) float64 {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		return a
	}
	return b
}
