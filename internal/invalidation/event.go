// Package invalidation defines the change events that evict cached clips.
package invalidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/raster-clip/internal/geom"
)

type Event struct {
	Version int       `json:"version"`
	Op      string    `json:"op"`
	Layer   string    `json:"layer,omitempty"`
	Raster  string    `json:"raster,omitempty"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
	// BBox limits the eviction to cached clips whose footprint meets it.
	BBox *BBox `json:"bbox,omitempty"`
}

type BBox struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid"`
}

func (b BBox) Geom() geom.BBox {
	return geom.BBox{MinX: b.X1, MinY: b.Y1, MaxX: b.X2, MaxY: b.Y2}
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return fmt.Errorf("op must be insert|update|delete")
	}
	hasLayer := strings.TrimSpace(e.Layer) != ""
	hasRaster := strings.TrimSpace(e.Raster) != ""
	if hasLayer == hasRaster {
		return fmt.Errorf("exactly one of layer or raster is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	if e.BBox == nil {
		return nil
	}
	bb := *e.BBox
	if bb.SRID != "EPSG:4326" {
		return fmt.Errorf("bbox.srid must be EPSG:4326")
	}
	if !(bb.X1 >= -180 && bb.X1 <= 180 && bb.X2 >= -180 && bb.X2 <= 180) {
		return fmt.Errorf("bbox longitude out of range")
	}
	if !(bb.Y1 >= -90 && bb.Y1 <= 90 && bb.Y2 >= -90 && bb.Y2 <= 90) {
		return fmt.Errorf("bbox latitude out of range")
	}
	if !(bb.X2 > bb.X1 && bb.Y2 > bb.Y1) {
		return fmt.Errorf("bbox must satisfy x2>x1 and y2>y1")
	}
	return nil
}

// Target names what the event invalidates, e.g. "layer:parcels".
func (e Event) Target() string {
	if e.Layer != "" {
		return "layer:" + e.Layer
	}
	return "raster:" + e.Raster
}

// DedupeKey identifies events that supersede each other: same target and
// same area.
func (e Event) DedupeKey() string {
	if e.BBox == nil {
		return e.Target()
	}
	b := e.BBox
	return fmt.Sprintf("%s|%g,%g,%g,%g", e.Target(), b.X1, b.Y1, b.X2, b.Y2)
}
