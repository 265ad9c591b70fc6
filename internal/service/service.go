// Package service ties the catalog, the clip pipeline and the result cache
// together behind the operations the HTTP router exposes.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/raster-clip/internal/cache"
	"github.com/mohammed-shakir/raster-clip/internal/cache/keys"
	"github.com/mohammed-shakir/raster-clip/internal/catalog"
	"github.com/mohammed-shakir/raster-clip/internal/clip"
	"github.com/mohammed-shakir/raster-clip/internal/core/model"
	"github.com/mohammed-shakir/raster-clip/internal/geojsonio"
	"github.com/mohammed-shakir/raster-clip/internal/mapper"
	"github.com/mohammed-shakir/raster-clip/internal/pipeline"
	"github.com/mohammed-shakir/raster-clip/internal/raster"
)

// ErrNotFound is returned for unknown raster or layer ids.
var ErrNotFound = errors.New("not found")

const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// geographic is the only CRS whose windows get an H3 footprint.
const geographic = "EPSG:4326"

type Service struct {
	cat    *catalog.Catalog
	coord  *pipeline.Coordinator
	cache  cache.Interface
	mapper mapper.Interface
	res    int
	log    *slog.Logger
}

// New wires a service. c and m may be nil: without a cache every clip is
// computed, without a mapper cached results carry no footprint.
func New(cat *catalog.Catalog, coord *pipeline.Coordinator, c cache.Interface, m mapper.Interface, res int, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{cat: cat, coord: coord, cache: c, mapper: m, res: res, log: log}
}

func (s *Service) PutRaster(ctx context.Context, id string, req model.RasterRequest) (*model.RasterInfo, error) {
	if err := catalog.ValidID(id); err != nil {
		return nil, err
	}
	if err := checkRasterValues(req); err != nil {
		return nil, fmt.Errorf("raster %s: %w", id, err)
	}
	var t raster.Affine
	switch strings.ToLower(req.TransformOrder) {
	case "", "affine":
		c := req.Transform
		t = raster.Affine{A: c[0], B: c[1], C: c[2], D: c[3], E: c[4], F: c[5]}
	case "gdal":
		t = raster.FromGDAL(req.Transform)
	default:
		return nil, model.Invalidf("unknown transform_order %q", req.TransformOrder)
	}
	d, err := raster.NewDescriptor(t, req.Width, req.Height, req.NoData)
	if err != nil {
		return nil, fmt.Errorf("raster %s: %w", id, err)
	}
	d = d.WithCRS(req.CRS)
	g, err := raster.NewGrid(req.Width, req.Height, req.Bands...)
	if err != nil {
		return nil, fmt.Errorf("raster %s: %w", id, err)
	}
	r, err := s.cat.PutRaster(id, d, g)
	if err != nil {
		return nil, err
	}
	if r.Version > 1 {
		s.invalidate(ctx, cache.Selector{Raster: id})
	}
	s.log.InfoContext(ctx, "raster stored",
		"raster", id, "version", r.Version, "width", req.Width, "height", req.Height, "bands", len(req.Bands))
	return rasterInfo(r), nil
}

// PutLayer decodes a GeoJSON body and indexes its polygons.
func (s *Service) PutLayer(ctx context.Context, id string, body []byte) (*model.LayerInfo, error) {
	if err := catalog.ValidID(id); err != nil {
		return nil, err
	}
	decoded, err := geojsonio.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("layer %s: %w", id, err)
	}
	l, err := s.cat.PutLayer(id, decoded.Polygons, decoded.FeatureIDs)
	if err != nil {
		return nil, err
	}
	if l.Version > 1 {
		s.invalidate(ctx, cache.Selector{Layer: id})
	}
	s.log.InfoContext(ctx, "layer stored",
		"layer", id, "version", l.Version, "polygons", len(l.Polygons), "index_height", l.Index.Height())
	return layerInfo(l), nil
}

func (s *Service) Raster(id string) (*model.RasterInfo, error) {
	r, ok := s.cat.Raster(id)
	if !ok {
		return nil, fmt.Errorf("raster %s: %w", id, ErrNotFound)
	}
	return rasterInfo(r), nil
}

func (s *Service) Layer(id string) (*model.LayerInfo, error) {
	l, ok := s.cat.Layer(id)
	if !ok {
		return nil, fmt.Errorf("layer %s: %w", id, ErrNotFound)
	}
	return layerInfo(l), nil
}

func (s *Service) DeleteRaster(ctx context.Context, id string) error {
	if !s.cat.DeleteRaster(id) {
		return fmt.Errorf("raster %s: %w", id, ErrNotFound)
	}
	s.invalidate(ctx, cache.Selector{Raster: id})
	return nil
}

func (s *Service) DeleteLayer(ctx context.Context, id string) error {
	if !s.cat.DeleteLayer(id) {
		return fmt.Errorf("layer %s: %w", id, ErrNotFound)
	}
	s.invalidate(ctx, cache.Selector{Layer: id})
	return nil
}

// Clip serves a clip from the cache or computes and caches it. Errors keep
// their model kind so callers can map them.
func (s *Service) Clip(ctx context.Context, req model.ClipRequest) (*model.ClipResponse, error) {
	if err := model.CheckFinite("fill_value", req.FillValue); err != nil {
		return nil, err
	}
	r, ok := s.cat.Raster(req.Raster)
	if !ok {
		return nil, fmt.Errorf("raster %s: %w", req.Raster, ErrNotFound)
	}
	l, ok := s.cat.Layer(req.Layer)
	if !ok {
		return nil, fmt.Errorf("layer %s: %w", req.Layer, ErrNotFound)
	}

	opts := clip.Options{
		Crop:       req.IsCropped(),
		AllTouched: req.AllTouched,
		Filled:     req.IsFilled(),
		FillValue:  req.FillValue,
	}
	key := keys.Clip(keys.ClipParams{
		Raster:       r.ID,
		RasterDigest: r.Digest,
		Layer:        l.ID,
		LayerDigest:  l.Digest,
		Crop:         opts.Crop,
		AllTouched:   opts.AllTouched,
		Filled:       opts.Filled,
		FillValue:    opts.FillValue,
	})

	if s.cache != nil {
		if b, tier, hit := s.cache.Get(ctx, key); hit {
			var resp model.ClipResponse
			err := json.Unmarshal(b, &resp)
			if err == nil {
				resp.Cache = CacheHit
				s.log.DebugContext(ctx, "clip served from cache", "key", key, "tier", tier)
				return &resp, nil
			}
			s.log.WarnContext(ctx, "cached clip undecodable", "key", key, "err", err)
		}
	}

	out, err := s.coord.RunIndexed(ctx, l.Index, l.Polygons, r.Descriptor, r.Source, opts)
	if err != nil {
		return nil, err
	}
	resp := toResponse(out)

	if s.cache != nil {
		b, err := json.Marshal(resp)
		if err != nil {
			return nil, fmt.Errorf("encode clip: %w", err)
		}
		meta := cache.Meta{Raster: r.ID, Layer: l.ID, Cells: s.footprint(ctx, r.Descriptor, out.Result.Window)}
		s.cache.Put(ctx, key, b, meta)
		resp.Cache = CacheMiss
	}
	return resp, nil
}

// checkRasterValues keeps every stored value encodable in a clip response.
func checkRasterValues(req model.RasterRequest) error {
	if err := model.CheckFinite("nodata", req.NoData); err != nil {
		return err
	}
	for i := range req.Transform {
		if err := model.CheckFinite("transform", &req.Transform[i]); err != nil {
			return err
		}
	}
	for b, band := range req.Bands {
		for i := range band {
			if math.IsNaN(band[i]) || math.IsInf(band[i], 0) {
				return model.Invalidf("band %d value %d must be finite, got %v", b, i, band[i])
			}
		}
	}
	return nil
}

// footprint returns the H3 cells covering w, or nil when the raster is not
// geographic or the window cannot be mapped.
func (s *Service) footprint(ctx context.Context, d raster.Descriptor, w raster.Window) []string {
	if s.mapper == nil || !strings.EqualFold(d.CRS(), geographic) {
		return nil
	}
	cells, err := s.mapper.CellsForBBox(d.WindowBox(w), s.res)
	if err != nil {
		s.log.DebugContext(ctx, "no footprint for window", "window", w.String(), "err", err)
		return nil
	}
	return cells
}

func (s *Service) invalidate(ctx context.Context, sel cache.Selector) {
	if s.cache == nil {
		return
	}
	n, err := s.cache.Invalidate(ctx, sel)
	if err != nil {
		s.log.WarnContext(ctx, "cache invalidation failed", "layer", sel.Layer, "raster", sel.Raster, "err", err)
		return
	}
	if n > 0 {
		s.log.DebugContext(ctx, "cache invalidated", "layer", sel.Layer, "raster", sel.Raster, "keys", n)
	}
}

func toResponse(out *pipeline.Outcome) *model.ClipResponse {
	res := out.Result
	resp := &model.ClipResponse{
		Selected: out.Selected,
		Total:    out.Total,
		Window: model.WindowJSON{
			ColOff: res.Window.ColOff,
			RowOff: res.Window.RowOff,
			Width:  res.Window.Width,
			Height: res.Window.Height,
		},
		Transform: res.Transform.Coefficients(),
		Shape:     res.Shape(),
		Mask:      res.Mask.Rows(),
		Bands:     res.Bands,
	}
	if res.Filled {
		fill := res.Fill
		resp.Fill = &fill
	}
	return resp
}

func rasterInfo(r *catalog.Raster) *model.RasterInfo {
	e := r.Descriptor.ExtentBox()
	return &model.RasterInfo{
		ID:      r.ID,
		Version: r.Version,
		Width:   r.Descriptor.Width(),
		Height:  r.Descriptor.Height(),
		Bands:   r.Source.Bands(),
		CRS:     r.Descriptor.CRS(),
		Extent:  [4]float64{e.MinX, e.MinY, e.MaxX, e.MaxY},
		Digest:  digestString(r.Digest),
	}
}

func layerInfo(l *catalog.Layer) *model.LayerInfo {
	info := &model.LayerInfo{
		ID:       l.ID,
		Version:  l.Version,
		Polygons: len(l.Polygons),
		Height:   l.Index.Height(),
		Digest:   digestString(l.Digest),
	}
	if b, ok := l.Bounds(); ok {
		info.Bounds = &[4]float64{b.MinX, b.MinY, b.MaxX, b.MaxY}
	}
	return info
}

func digestString(d uint64) string {
	s := strconv.FormatUint(d, 16)
	return strings.Repeat("0", 16-len(s)) + s
}
