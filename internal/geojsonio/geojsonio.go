// Package geojsonio converts between GeoJSON layers and polygon sets.
package geojsonio

import (
	"encoding/json"
	"fmt"

	gogeom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/mohammed-shakir/raster-clip/internal/core/model"
	"github.com/mohammed-shakir/raster-clip/internal/geom"
)

// Layer is a decoded GeoJSON document. FeatureIDs[i] names the feature the
// i-th polygon came from ("" when the feature had no id).
type Layer struct {
	Polygons   geom.PolygonSet
	FeatureIDs []string
}

// Decode accepts a FeatureCollection, a Feature, a Polygon or a MultiPolygon.
// Each polygon part becomes one Polygon. Features without geometry are
// skipped; any other geometry type is rejected.
func Decode(data []byte) (*Layer, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, model.Invalidf("geojson: %v", err)
	}

	l := &Layer{}
	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, model.Invalidf("geojson: %v", err)
		}
		for i, f := range fc.Features {
			if f == nil {
				continue
			}
			if err := l.add(f.ID, f.Geometry); err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
		}
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, model.Invalidf("geojson: %v", err)
		}
		if err := l.add(f.ID, f.Geometry); err != nil {
			return nil, err
		}
	case "Polygon", "MultiPolygon":
		var g gogeom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, model.Invalidf("geojson: %v", err)
		}
		if err := l.add("", g); err != nil {
			return nil, err
		}
	case "":
		return nil, model.Invalidf("geojson: missing type")
	default:
		return nil, model.Invalidf("geojson: unsupported type %q", head.Type)
	}
	return l, nil
}

func (l *Layer) add(id string, g gogeom.T) error {
	switch g := g.(type) {
	case nil:
		return nil
	case *gogeom.Polygon:
		return l.addPolygon(id, g.Coords())
	case *gogeom.MultiPolygon:
		for i, part := range g.Coords() {
			if err := l.addPolygon(id, part); err != nil {
				return fmt.Errorf("part %d: %w", i, err)
			}
		}
		return nil
	default:
		return model.Invalidf("geojson: %T is not polygonal", g)
	}
}

func (l *Layer) addPolygon(id string, rings [][]gogeom.Coord) error {
	if len(rings) == 0 {
		return model.Invalidf("geojson: polygon without rings")
	}
	converted := make([][]geom.Point, len(rings))
	for i, r := range rings {
		pts := make([]geom.Point, len(r))
		for j, c := range r {
			if len(c) < 2 {
				return model.Invalidf("geojson: ring %d vertex %d has %d ordinates", i, j, len(c))
			}
			pts[j] = geom.Point{X: c[0], Y: c[1]}
		}
		converted[i] = pts
	}
	p, err := geom.NewPolygon(converted[0], converted[1:]...)
	if err != nil {
		return err
	}
	l.Polygons = append(l.Polygons, p)
	l.FeatureIDs = append(l.FeatureIDs, id)
	return nil
}

// Encode renders l as a FeatureCollection with one Polygon feature per
// polygon; Decode reads it back.
func Encode(l *Layer) ([]byte, error) {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(l.Polygons))}
	for i, p := range l.Polygons {
		g, err := encodePolygon(p)
		if err != nil {
			return nil, fmt.Errorf("polygon %d: %w", i, err)
		}
		f := &geojson.Feature{Geometry: g, Properties: map[string]any{}}
		if i < len(l.FeatureIDs) {
			f.ID = l.FeatureIDs[i]
		}
		fc.Features = append(fc.Features, f)
	}
	return json.Marshal(fc)
}

func encodePolygon(p *geom.Polygon) (*gogeom.Polygon, error) {
	rings := make([][]gogeom.Coord, 0, 1+p.NumHoles())
	rings = append(rings, toCoords(p.Exterior()))
	for i := range p.NumHoles() {
		rings = append(rings, toCoords(p.Hole(i)))
	}
	return gogeom.NewPolygon(gogeom.XY).SetCoords(rings)
}

func toCoords(r geom.Ring) []gogeom.Coord {
	out := make([]gogeom.Coord, len(r))
	for i, p := range r {
		out[i] = gogeom.Coord{p.X, p.Y}
	}
	return out
}
