// Package catalog keeps the rasters and polygon layers the service clips
// against. Layers are indexed once on upload.
package catalog

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/raster-clip/internal/core/model"
	"github.com/mohammed-shakir/raster-clip/internal/core/observability"
	"github.com/mohammed-shakir/raster-clip/internal/geom"
	"github.com/mohammed-shakir/raster-clip/internal/raster"
	"github.com/mohammed-shakir/raster-clip/internal/spatialindex"
)

const maxIDLen = 128

type Raster struct {
	ID         string
	Descriptor raster.Descriptor
	Source     *raster.Grid
	Version    uint64
	// Digest fingerprints georeferencing and pixel values.
	Digest  uint64
	Updated time.Time
}

type Layer struct {
	ID         string
	Polygons   geom.PolygonSet
	FeatureIDs []string
	Index      *spatialindex.Index
	Version    uint64
	Digest     uint64
	Updated    time.Time
}

// Bounds is the union of the layer's polygon boxes; ok is false for an
// empty layer.
func (l *Layer) Bounds() (geom.BBox, bool) { return l.Index.Bounds() }

type Catalog struct {
	mu        sync.RWMutex
	indexOpts spatialindex.Options
	rasters   map[string]*Raster
	layers    map[string]*Layer
	now       func() time.Time
}

func New(indexOpts spatialindex.Options) *Catalog {
	return &Catalog{
		indexOpts: indexOpts,
		rasters:   make(map[string]*Raster),
		layers:    make(map[string]*Layer),
		now:       time.Now,
	}
}

// ValidID accepts 1..128 characters from [A-Za-z0-9._-].
func ValidID(id string) error {
	if id == "" || len(id) > maxIDLen {
		return model.Invalidf("id must be 1..%d characters", maxIDLen)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return model.Invalidf("id %q contains %q", id, r)
		}
	}
	return nil
}

// PutRaster stores or replaces a raster and returns the stored entry.
func (c *Catalog) PutRaster(id string, d raster.Descriptor, src *raster.Grid) (*Raster, error) {
	if err := ValidID(id); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, model.Invalidf("raster %s: no pixel data", id)
	}
	if src.Width() != d.Width() || src.Height() != d.Height() {
		return nil, model.Invalidf("raster %s: grid %dx%d does not match descriptor %dx%d",
			id, src.Width(), src.Height(), d.Width(), d.Height())
	}
	e := &Raster{ID: id, Descriptor: d, Source: src, Digest: rasterDigest(d, src)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.rasters[id]; ok {
		e.Version = prev.Version + 1
	} else {
		e.Version = 1
	}
	e.Updated = c.now()
	c.rasters[id] = e
	return e, nil
}

// PutLayer indexes set and stores it under id. The index is built outside
// the lock.
func (c *Catalog) PutLayer(id string, set geom.PolygonSet, featureIDs []string) (*Layer, error) {
	if err := ValidID(id); err != nil {
		return nil, err
	}
	if featureIDs != nil && len(featureIDs) != set.Len() {
		return nil, model.Invalidf("layer %s: %d feature ids for %d polygons", id, len(featureIDs), set.Len())
	}
	start := time.Now()
	idx, err := spatialindex.Build(set, c.indexOpts)
	if err != nil {
		return nil, err
	}
	observability.ObserveIndexBuild(time.Since(start).Seconds())

	e := &Layer{ID: id, Polygons: set, FeatureIDs: featureIDs, Index: idx, Digest: layerDigest(set)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.layers[id]; ok {
		e.Version = prev.Version + 1
	} else {
		e.Version = 1
	}
	e.Updated = c.now()
	c.layers[id] = e
	return e, nil
}

func (c *Catalog) Raster(id string) (*Raster, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.rasters[id]
	return e, ok
}

func (c *Catalog) Layer(id string) (*Layer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.layers[id]
	return e, ok
}

func (c *Catalog) DeleteRaster(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rasters[id]
	delete(c.rasters, id)
	return ok
}

func (c *Catalog) DeleteLayer(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.layers[id]
	delete(c.layers, id)
	return ok
}

// Counts reports the number of stored rasters and layers.
func (c *Catalog) Counts() (rasters, layers int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rasters), len(c.layers)
}

type digest struct {
	h   *xxhash.Digest
	buf [8]byte
}

func newDigest() *digest { return &digest{h: xxhash.New()} }

func (d *digest) float(v float64) {
	binary.LittleEndian.PutUint64(d.buf[:], math.Float64bits(v))
	_, _ = d.h.Write(d.buf[:])
}

func (d *digest) int(v int) {
	binary.LittleEndian.PutUint64(d.buf[:], uint64(v))
	_, _ = d.h.Write(d.buf[:])
}

func rasterDigest(d raster.Descriptor, g *raster.Grid) uint64 {
	h := newDigest()
	for _, v := range d.Transform().Coefficients() {
		h.float(v)
	}
	h.int(d.Width())
	h.int(d.Height())
	if nd, ok := d.NoData(); ok {
		h.int(1)
		h.float(nd)
	} else {
		h.int(0)
	}
	_, _ = h.h.WriteString(d.CRS())
	h.int(g.Bands())
	for b := range g.Bands() {
		for r := range g.Height() {
			for col := range g.Width() {
				h.float(g.At(b, col, r))
			}
		}
	}
	return h.h.Sum64()
}

func layerDigest(set geom.PolygonSet) uint64 {
	h := newDigest()
	h.int(set.Len())
	ring := func(r geom.Ring) {
		h.int(len(r))
		for _, p := range r {
			h.float(p.X)
			h.float(p.Y)
		}
	}
	for _, p := range set {
		ring(p.Exterior())
		h.int(p.NumHoles())
		for i := range p.NumHoles() {
			ring(p.Hole(i))
		}
	}
	return h.h.Sum64()
}
