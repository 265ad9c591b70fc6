package h3mapper

import (
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/raster-clip/internal/core/model"
	"github.com/mohammed-shakir/raster-clip/internal/geom"
)

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// CellsForBBox returns the sorted, de-duplicated cells whose centres fall in
// bb plus the cells holding bb's corners and centre, so boxes smaller than a
// cell still map to at least one cell. bb is lon/lat in degrees.
func (m *Mapper) CellsForBBox(bb geom.BBox, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if err := bb.Validate(); err != nil {
		return nil, err
	}
	if bb.MinX < -180 || bb.MaxX > 180 || bb.MinY < -90 || bb.MaxY > 90 {
		return nil, model.Invalidf("bbox %s is outside lon/lat range", bb)
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(c h3.Cell) {
		s := c.String()
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	if bb.Width() > 0 && bb.Height() > 0 {
		// v4 wants degrees.
		outer := h3.GeoLoop{
			{Lat: bb.MinY, Lng: bb.MinX},
			{Lat: bb.MinY, Lng: bb.MaxX},
			{Lat: bb.MaxY, Lng: bb.MaxX},
			{Lat: bb.MaxY, Lng: bb.MinX},
		}
		cells, err := h3.PolygonToCells(h3.GeoPolygon{GeoLoop: outer}, res)
		if err != nil {
			return nil, fmt.Errorf("h3 polyfill: %w", err)
		}
		for _, c := range cells {
			add(c)
		}
	}

	ctr := bb.Center()
	for _, p := range []geom.Point{
		{X: bb.MinX, Y: bb.MinY}, {X: bb.MaxX, Y: bb.MinY},
		{X: bb.MaxX, Y: bb.MaxY}, {X: bb.MinX, Y: bb.MaxY},
		ctr,
	} {
		c, err := h3.LatLngToCell(h3.LatLng{Lat: p.Y, Lng: p.X}, res)
		if err != nil {
			return nil, fmt.Errorf("h3 cell for %v: %w", p, err)
		}
		add(c)
	}

	sort.Strings(out)
	return out, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return model.Invalidf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}
