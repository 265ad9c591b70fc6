// Package cellindex maps H3 cells to the cached clip results whose
// footprint covers them.
package cellindex

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammed-shakir/raster-clip/internal/cache/keys"
	"github.com/mohammed-shakir/raster-clip/internal/cache/redisstore"
)

type CellIndex interface {
	// Add records that result covers every cell in cells.
	Add(ctx context.Context, res int, cells []string, result string, ttl time.Duration) error
	// Lookup returns the results covering any of cells, without duplicates.
	Lookup(ctx context.Context, res int, cells []string) ([]string, error)
	// Remove drops results from the given cells.
	Remove(ctx context.Context, res int, cells []string, results []string) error
}

type redisCellIndex struct {
	cli *redisstore.Client
}

func NewRedisIndex(cli *redisstore.Client) CellIndex {
	return &redisCellIndex{cli: cli}
}

func cellKeys(res int, cells []string) []string {
	out := make([]string, 0, len(cells))
	seen := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, keys.Cell(res, c))
	}
	return out
}

func (ci *redisCellIndex) Add(ctx context.Context, res int, cells []string, result string, ttl time.Duration) error {
	if err := ci.cli.AddToSets(ctx, result, ttl, cellKeys(res, cells)...); err != nil {
		return fmt.Errorf("cellindex add %q: %w", result, err)
	}
	return nil
}

func (ci *redisCellIndex) Lookup(ctx context.Context, res int, cells []string) ([]string, error) {
	out, err := ci.cli.Union(ctx, cellKeys(res, cells)...)
	if err != nil {
		return nil, fmt.Errorf("cellindex lookup %d cells: %w", len(cells), err)
	}
	return out, nil
}

func (ci *redisCellIndex) Remove(ctx context.Context, res int, cells []string, results []string) error {
	if err := ci.cli.RemoveFromSets(ctx, results, cellKeys(res, cells)...); err != nil {
		return fmt.Errorf("cellindex remove: %w", err)
	}
	return nil
}
