package raster

import "fmt"

// Window is an integer pixel rectangle. Zero width or height means empty.
type Window struct {
	ColOff, RowOff int
	Width, Height  int
}

func (w Window) Empty() bool { return w.Width <= 0 || w.Height <= 0 }

// Size is the number of pixels in the window.
func (w Window) Size() int {
	if w.Empty() {
		return 0
	}
	return w.Width * w.Height
}

// Within reports whether w lies inside a width x height grid.
func (w Window) Within(width, height int) bool {
	return w.ColOff >= 0 && w.RowOff >= 0 && w.Width >= 0 && w.Height >= 0 &&
		w.ColOff+w.Width <= width && w.RowOff+w.Height <= height
}

// Intersect clips w to o; the result may be empty.
func (w Window) Intersect(o Window) Window {
	c0, r0 := max(w.ColOff, o.ColOff), max(w.RowOff, o.RowOff)
	c1 := min(w.ColOff+w.Width, o.ColOff+o.Width)
	r1 := min(w.RowOff+w.Height, o.RowOff+o.Height)
	if c1 <= c0 || r1 <= r0 {
		return Window{ColOff: c0, RowOff: r0}
	}
	return Window{ColOff: c0, RowOff: r0, Width: c1 - c0, Height: r1 - r0}
}

func (w Window) String() string {
	return fmt.Sprintf("Window(col_off=%d, row_off=%d, width=%d, height=%d)", w.ColOff, w.RowOff, w.Width, w.Height)
}
