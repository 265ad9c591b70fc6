// Package raster describes a georeferenced pixel grid: its affine transform,
// dimensions and no-data value, plus access to its pixel values by window.
package raster

import (
	"fmt"
	"math"

	"github.com/mohammed-shakir/raster-clip/internal/core/model"
)

// Affine maps pixel (col,row) to world (x,y):
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Identity maps pixel coordinates onto themselves.
var Identity = Affine{A: 1, E: 1}

// NorthUp builds the usual transform for a grid whose top-left corner is at
// (originX, originY) with square-ish pixels of the given size.
func NorthUp(originX, originY, pixelWidth, pixelHeight float64) Affine {
	return Affine{A: pixelWidth, C: originX, E: -pixelHeight, F: originY}
}

// FromGDAL converts a GDAL geotransform (c, a, b, f, d, e).
func FromGDAL(gt [6]float64) Affine {
	return Affine{A: gt[1], B: gt[2], C: gt[0], D: gt[4], E: gt[5], F: gt[3]}
}

// GDAL returns the transform in GDAL geotransform order.
func (t Affine) GDAL() [6]float64 {
	return [6]float64{t.C, t.A, t.B, t.F, t.D, t.E}
}

// Coefficients returns (A, B, C, D, E, F).
func (t Affine) Coefficients() [6]float64 {
	return [6]float64{t.A, t.B, t.C, t.D, t.E, t.F}
}

func (t Affine) Determinant() float64 { return t.A*t.E - t.B*t.D }

func (t Affine) Apply(col, row float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Invert fails with an invalid-argument error for singular or non-finite transforms.
func (t Affine) Invert() (Affine, error) {
	for _, v := range t.Coefficients() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Affine{}, model.Invalidf("non-finite transform %s", t)
		}
	}
	det := t.Determinant()
	if det == 0 {
		return Affine{}, model.Invalidf("singular transform %s", t)
	}
	ia, ib := t.E/det, -t.B/det
	id, ie := -t.D/det, t.A/det
	return Affine{
		A: ia, B: ib, C: -(ia*t.C + ib*t.F),
		D: id, E: ie, F: -(id*t.C + ie*t.F),
	}, nil
}

// Translate returns the transform of a grid whose pixel (0,0) is this grid's
// pixel (colOff,rowOff).
func (t Affine) Translate(colOff, rowOff float64) Affine {
	x, y := t.Apply(colOff, rowOff)
	out := t
	out.C, out.F = x, y
	return out
}

func (t Affine) String() string {
	return fmt.Sprintf("Affine(%g, %g, %g, %g, %g, %g)", t.A, t.B, t.C, t.D, t.E, t.F)
}
