// Package mapper converts geographic boxes into H3 cell footprints.
package mapper

import (
	"github.com/mohammed-shakir/raster-clip/internal/geom"
)

// Interface maps a lon/lat box (EPSG:4326) to the H3 cells covering it.
type Interface interface {
	CellsForBBox(bb geom.BBox, res int) ([]string, error)
}
