// Package cache defines the clip result cache contract.
package cache

import (
	"context"
	"slices"
)

const (
	TierL1 = "l1"
	TierL2 = "l2"
)

// Meta tags a cached result with its inputs and, for geographic rasters,
// the H3 cells its output window covers.
type Meta struct {
	Raster string   `json:"raster"`
	Layer  string   `json:"layer"`
	Cells  []string `json:"cells,omitempty"`
}

// Selector picks the results an invalidation drops. Exactly one of Layer
// and Raster is set. With Cells set only results whose footprint shares a
// cell are dropped; results without a footprint always are.
type Selector struct {
	Layer  string
	Raster string
	Cells  []string
}

func (s Selector) Matches(m Meta) bool {
	switch {
	case s.Layer != "" && m.Layer != s.Layer:
		return false
	case s.Raster != "" && m.Raster != s.Raster:
		return false
	case s.Layer == "" && s.Raster == "":
		return false
	}
	if s.Cells == nil || len(m.Cells) == 0 {
		return true
	}
	for _, c := range m.Cells {
		if slices.Contains(s.Cells, c) {
			return true
		}
	}
	return false
}

type Interface interface {
	// Get returns the cached value and the tier that served it.
	Get(ctx context.Context, key string) (val []byte, tier string, ok bool)
	Put(ctx context.Context, key string, val []byte, meta Meta)
	// Invalidate drops matching results and reports how many were removed.
	Invalidate(ctx context.Context, sel Selector) (int, error)
}
