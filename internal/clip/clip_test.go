package clip

import (
	"context"
	"errors"
	"maps"
	"testing"

	"github.com/mohammed-shakir/raster-clip/internal/core/model"
	"github.com/mohammed-shakir/raster-clip/internal/geom"
	"github.com/mohammed-shakir/raster-clip/internal/raster"
)

const noData = -9999.0

func sq(x0, y0, x1, y1 float64) []geom.Point {
	return []geom.Point{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

// tenByTen is a 10x10 grid of 1-unit pixels covering (0,0)-(10,10).
func tenByTen(t *testing.T, withNoData bool) (raster.Descriptor, *raster.Grid) {
	t.Helper()
	var nd *float64
	if withNoData {
		v := noData
		nd = &v
	}
	d, err := raster.NewDescriptor(raster.NorthUp(0, 10, 1, 1), 10, 10, nd)
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}
	vals := make([]float64, 100)
	for i := range vals {
		vals[i] = float64(i + 1)
	}
	g, err := raster.NewGrid(10, 10, vals)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return d, g
}

func expectMask(t *testing.T, res *Result, d raster.Descriptor, want func(x, y float64) bool) {
	t.Helper()
	m := res.Mask
	if m.Width() != res.Window.Width || m.Height() != res.Window.Height {
		t.Fatalf("mask %dx%d does not match window %s", m.Width(), m.Height(), res.Window)
	}
	for r := range m.Height() {
		for c := range m.Width() {
			p := d.PixelCenter(res.Window.ColOff+c, res.Window.RowOff+r)
			if got, exp := m.At(c, r), want(p.X, p.Y); got != exp {
				t.Fatalf("mask(%d,%d) centre=(%v,%v): got %v want %v", c, r, p.X, p.Y, got, exp)
			}
		}
	}
}

func TestClip_FullSquare(t *testing.T) {
	d, g := tenByTen(t, true)
	poly := geom.MustPolygon(sq(0, 0, 10, 10))
	res, err := NewEngine(1).Clip(context.Background(), []*geom.Polygon{poly}, d, g, DefaultOptions())
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	if res.Window != (raster.Window{Width: 10, Height: 10}) {
		t.Fatalf("window=%s", res.Window)
	}
	if res.Mask.Count() != 100 {
		t.Fatalf("mask count=%d want 100", res.Mask.Count())
	}
	for i, v := range res.Bands[0] {
		if v != float64(i+1) {
			t.Fatalf("pixel %d overwritten: %v", i, v)
		}
	}
	if res.Transform != d.Transform() {
		t.Fatalf("transform=%s", res.Transform)
	}
	if res.Shape() != [3]int{1, 10, 10} {
		t.Fatalf("shape=%v", res.Shape())
	}
}

func TestClip_AlignedRectangleExactMask(t *testing.T) {
	d, g := tenByTen(t, true)
	poly := geom.MustPolygon(sq(2, 3, 6, 8))
	res, err := NewEngine(1).Clip(context.Background(), []*geom.Polygon{poly}, d, g, DefaultOptions())
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	// rows count from the top: y in [3,8] is rows 2..6, x in [2,6] is cols 2..5
	if res.Window != (raster.Window{ColOff: 2, RowOff: 2, Width: 4, Height: 5}) {
		t.Fatalf("window=%s", res.Window)
	}
	if res.Mask.Count() != 20 {
		t.Fatalf("aligned rectangle mask must be all true, count=%d", res.Mask.Count())
	}
	if res.Transform != (raster.Affine{A: 1, C: 2, E: -1, F: 8}) {
		t.Fatalf("cropped transform=%s", res.Transform)
	}
	// first pixel of the window is grid (col 2,row 2) = value 2*10+2+1
	if res.Bands[0][0] != 23 {
		t.Fatalf("first pixel=%v want 23", res.Bands[0][0])
	}
}

func TestClip_HoleFilledWithNoData(t *testing.T) {
	d, g := tenByTen(t, true)
	poly := geom.MustPolygon(sq(0, 0, 10, 10), sq(3, 3, 7, 7))
	res, err := NewEngine(1).Clip(context.Background(), []*geom.Polygon{poly}, d, g, DefaultOptions())
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	inHole := func(x, y float64) bool { return x > 3 && x < 7 && y > 3 && y < 7 }
	expectMask(t, res, d, func(x, y float64) bool { return !inHole(x, y) })
	if res.Mask.Count() != 84 {
		t.Fatalf("mask count=%d want 84", res.Mask.Count())
	}
	for r := range 10 {
		for c := range 10 {
			v := res.Bands[0][r*10+c]
			hole := c >= 3 && c <= 6 && r >= 3 && r <= 6
			if hole && v != noData {
				t.Fatalf("hole pixel (%d,%d)=%v want nodata", c, r, v)
			}
			if !hole && v != float64(r*10+c+1) {
				t.Fatalf("pixel (%d,%d)=%v changed", c, r, v)
			}
		}
	}
}

func TestClip_UnionOfOverlappingPolygons(t *testing.T) {
	d, g := tenByTen(t, true)
	a := geom.MustPolygon(sq(0, 0, 6, 6))
	b := geom.MustPolygon(sq(4, 4, 10, 10))
	res, err := NewEngine(1).Clip(context.Background(), []*geom.Polygon{a, b}, d, g, DefaultOptions())
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	if res.Window != (raster.Window{Width: 10, Height: 10}) {
		t.Fatalf("window=%s", res.Window)
	}
	expectMask(t, res, d, func(x, y float64) bool {
		return (x < 6 && y < 6) || (x > 4 && y > 4)
	})
	if res.Mask.Count() != 36+36-4 {
		t.Fatalf("union count=%d want 68", res.Mask.Count())
	}
}

func TestClip_Errors(t *testing.T) {
	d, g := tenByTen(t, true)
	e := NewEngine(1)
	ctx := context.Background()

	if _, err := e.Clip(ctx, nil, d, g, DefaultOptions()); !errors.Is(err, model.ErrEmptyGeometry) {
		t.Fatalf("no candidates: err=%v", err)
	}

	far := geom.MustPolygon(sq(100, 100, 110, 110))
	if _, err := e.Clip(ctx, []*geom.Polygon{far}, d, g, DefaultOptions()); !errors.Is(err, model.ErrNoOverlap) {
		t.Fatalf("far polygon: err=%v", err)
	}
	// outside stays an error even without cropping
	opts := DefaultOptions()
	opts.Crop = false
	if _, err := e.Clip(ctx, []*geom.Polygon{far}, d, g, opts); !errors.Is(err, model.ErrNoOverlap) {
		t.Fatalf("far polygon, no crop: err=%v", err)
	}

	dNo, gNo := tenByTen(t, false)
	in := geom.MustPolygon(sq(1, 1, 2, 2))
	if _, err := e.Clip(ctx, []*geom.Polygon{in}, dNo, gNo, DefaultOptions()); !errors.Is(err, model.ErrMissingFillValue) {
		t.Fatalf("no nodata: err=%v", err)
	}
}

func TestClip_FillValueAndUnfilled(t *testing.T) {
	dNo, g := tenByTen(t, false)
	poly := geom.MustPolygon([]geom.Point{{0, 0}, {4, 0}, {0, 4}})
	ctx := context.Background()

	fill := 0.0
	res, err := NewEngine(1).Clip(ctx, []*geom.Polygon{poly}, dNo, g, Options{Crop: true, Filled: true, FillValue: &fill})
	if err != nil {
		t.Fatalf("Clip with fill value: %v", err)
	}
	for i, in := range res.Mask.bits {
		if !in && res.Bands[0][i] != 0 {
			t.Fatalf("pixel %d outside mask not filled: %v", i, res.Bands[0][i])
		}
	}

	raw, err := NewEngine(1).Clip(ctx, []*geom.Polygon{poly}, dNo, g, Options{Crop: true})
	if err != nil {
		t.Fatalf("Clip unfilled: %v", err)
	}
	if raw.Filled {
		t.Fatalf("result must report unfilled")
	}
	if raw.Mask.Count() == raw.Window.Size() {
		t.Fatalf("triangle must leave some pixels unmasked")
	}
	for r := range raw.Window.Height {
		for c := range raw.Window.Width {
			want := g.At(0, raw.Window.ColOff+c, raw.Window.RowOff+r)
			if got := raw.Bands[0][r*raw.Window.Width+c]; got != want {
				t.Fatalf("unfilled pixel (%d,%d)=%v want %v", c, r, got, want)
			}
		}
	}
}

func TestClip_NoCropReturnsFullRaster(t *testing.T) {
	d, g := tenByTen(t, true)
	poly := geom.MustPolygon(sq(2, 2, 4, 4))
	opts := DefaultOptions()
	opts.Crop = false
	res, err := NewEngine(1).Clip(context.Background(), []*geom.Polygon{poly}, d, g, opts)
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	if res.Window != d.FullWindow() {
		t.Fatalf("window=%s want full", res.Window)
	}
	if res.Mask.Count() != 4 {
		t.Fatalf("mask count=%d want 4", res.Mask.Count())
	}
}

func TestClip_AllTouchedCoversMore(t *testing.T) {
	d, g := tenByTen(t, true)
	// thin diagonal sliver: only the diagonal centres fall inside, its edges clip the neighbours
	poly := geom.MustPolygon([]geom.Point{{1, 1}, {9, 8.9}, {9, 9}, {1, 1.1}})
	ctx := context.Background()

	center, err := NewEngine(1).Clip(ctx, []*geom.Polygon{poly}, d, g, DefaultOptions())
	if err != nil {
		t.Fatalf("Clip center: %v", err)
	}
	opts := DefaultOptions()
	opts.AllTouched = true
	touched, err := NewEngine(1).Clip(ctx, []*geom.Polygon{poly}, d, g, opts)
	if err != nil {
		t.Fatalf("Clip all touched: %v", err)
	}
	if touched.Mask.Count() <= center.Mask.Count() {
		t.Fatalf("all touched=%d must exceed center=%d", touched.Mask.Count(), center.Mask.Count())
	}
	for r := range center.Mask.Height() {
		for c := range center.Mask.Width() {
			if center.Mask.At(c, r) && !touched.Mask.At(c, r) {
				t.Fatalf("all-touched must be a superset of center at (%d,%d)", c, r)
			}
		}
	}
	// every pixel along the diagonal is touched
	for i := 1; i < 9; i++ {
		row := 10 - i - 1
		if !touched.Mask.At(i-touched.Window.ColOff, row-touched.Window.RowOff) {
			t.Fatalf("diagonal pixel (%d,%d) not touched", i, row)
		}
	}
}

// coveredPixels lists the grid (col,row) of every masked pixel.
func coveredPixels(res *Result) map[[2]int]bool {
	out := make(map[[2]int]bool)
	for r := range res.Mask.Height() {
		for c := range res.Mask.Width() {
			if res.Mask.At(c, r) {
				out[[2]int{res.Window.ColOff + c, res.Window.RowOff + r}] = true
			}
		}
	}
	return out
}

func TestClip_CoverageIndependentOfCrop(t *testing.T) {
	d, g := tenByTen(t, true)
	cases := []struct {
		name       string
		poly       *geom.Polygon
		allTouched bool
		want       int
	}{
		{"aligned center", geom.MustPolygon(sq(2, 2, 5, 5)), false, 9},
		// edge and corner contact with the neighbours is not area overlap
		{"aligned all touched", geom.MustPolygon(sq(2, 2, 5, 5)), true, 9},
		{"offset center", geom.MustPolygon(sq(2.5, 2.5, 5.5, 5.5)), false, 4},
		{"offset all touched", geom.MustPolygon(sq(2.5, 2.5, 5.5, 5.5)), true, 16},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var sets []map[[2]int]bool
			for _, crop := range []bool{true, false} {
				opts := DefaultOptions()
				opts.Crop = crop
				opts.AllTouched = tc.allTouched
				res, err := NewEngine(1).Clip(context.Background(), []*geom.Polygon{tc.poly}, d, g, opts)
				if err != nil {
					t.Fatalf("crop=%v: %v", crop, err)
				}
				if got := res.Mask.Count(); got != tc.want {
					t.Fatalf("crop=%v: count=%d want %d rows=%v", crop, got, tc.want, res.Mask.Rows())
				}
				sets = append(sets, coveredPixels(res))
			}
			if !maps.Equal(sets[0], sets[1]) {
				t.Fatalf("covered pixels differ: crop=%v no crop=%v", sets[0], sets[1])
			}
		})
	}

	opts := DefaultOptions()
	opts.AllTouched = true
	res, err := NewEngine(1).Clip(context.Background(), []*geom.Polygon{geom.MustPolygon(sq(2, 2, 5, 5))}, d, g, opts)
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	if want := (raster.Window{ColOff: 2, RowOff: 5, Width: 3, Height: 3}); res.Window != want {
		t.Fatalf("window=%s want %s", res.Window, want)
	}
}

func TestClip_ParallelMatchesSequential(t *testing.T) {
	d, err := raster.NewDescriptor(raster.NorthUp(0, 300, 1, 1), 300, 300, func() *float64 { v := noData; return &v }())
	if err != nil {
		t.Fatalf("NewDescriptor: %v", err)
	}
	g, _ := raster.Constant(300, 300, 1)
	polys := []*geom.Polygon{
		geom.MustPolygon([]geom.Point{{10, 10}, {290, 40}, {150, 280}}, []geom.Point{{120, 100}, {180, 100}, {150, 150}}),
		geom.MustPolygon(sq(200, 200, 299.5, 299.5)),
	}
	for _, allTouched := range []bool{false, true} {
		opts := DefaultOptions()
		opts.AllTouched = allTouched
		seq, err := NewEngine(1).Clip(context.Background(), polys, d, g, opts)
		if err != nil {
			t.Fatalf("sequential: %v", err)
		}
		par, err := (&Engine{Workers: 8, MinRowsPerWorker: 4}).Clip(context.Background(), polys, d, g, opts)
		if err != nil {
			t.Fatalf("parallel: %v", err)
		}
		if seq.Window != par.Window {
			t.Fatalf("windows differ: %s vs %s", seq.Window, par.Window)
		}
		for i := range seq.Mask.bits {
			if seq.Mask.bits[i] != par.Mask.bits[i] {
				t.Fatalf("allTouched=%v: masks differ at %d", allTouched, i)
			}
		}
		if !seq.Window.Within(d.Width(), d.Height()) {
			t.Fatalf("window %s escapes grid", seq.Window)
		}
	}
}

func TestClip_CanceledContext(t *testing.T) {
	d, g := tenByTen(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	poly := geom.MustPolygon(sq(0, 0, 10, 10))
	if _, err := NewEngine(1).Clip(ctx, []*geom.Polygon{poly}, d, g, DefaultOptions()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMaskRowsRoundTrip(t *testing.T) {
	m := newMask(3, 2)
	m.bits[0], m.bits[4] = true, true
	rows := m.Rows()
	if rows[0] != "100" || rows[1] != "010" {
		t.Fatalf("Rows=%v", rows)
	}
	back := maskFromRows(rows)
	for i := range m.bits {
		if back.bits[i] != m.bits[i] {
			t.Fatalf("round trip differs at %d", i)
		}
	}
}

func maskFromRows(rows []string) *Mask {
	if len(rows) == 0 {
		return newMask(0, 0)
	}
	m := newMask(len(rows[0]), len(rows))
	for r, row := range rows {
		for c := 0; c < len(row) && c < m.width; c++ {
			m.bits[r*m.width+c] = row[c] == '1'
		}
	}
	return m
}
