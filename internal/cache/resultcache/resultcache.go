// Package resultcache caches encoded clip results in a process-local LRU
// backed by Redis. Redis failures degrade to misses.
package resultcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/raster-clip/internal/cache"
	"github.com/mohammed-shakir/raster-clip/internal/cache/cellindex"
	"github.com/mohammed-shakir/raster-clip/internal/cache/keys"
	"github.com/mohammed-shakir/raster-clip/internal/cache/redisstore"
	"github.com/mohammed-shakir/raster-clip/internal/core/observability"
)

type Options struct {
	Size      int
	TTL       time.Duration
	OpTimeout time.Duration
	// Res is the H3 resolution of Meta.Cells and Selector.Cells.
	Res int
}

type entry struct {
	val     []byte
	meta    cache.Meta
	expires time.Time
}

// envelope is the Redis value: the result plus its tags, so an L2 hit can be
// promoted into L1 with enough metadata to be invalidated there too.
type envelope struct {
	Meta cache.Meta `json:"meta"`
	Body []byte     `json:"body"`
}

type Cache struct {
	l1    *lru.Cache[string, entry]
	rdb   *redisstore.Client
	cells cellindex.CellIndex
	opts  Options
	log   zerolog.Logger
	now   func() time.Time
}

var _ cache.Interface = (*Cache)(nil)

// New builds a cache; rdb may be nil for an L1-only cache.
func New(opts Options, rdb *redisstore.Client, log zerolog.Logger) (*Cache, error) {
	if opts.Size <= 0 {
		opts.Size = 256
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 250 * time.Millisecond
	}
	l1, err := lru.New[string, entry](opts.Size)
	if err != nil {
		return nil, fmt.Errorf("result cache lru: %w", err)
	}
	c := &Cache{
		l1:   l1,
		rdb:  rdb,
		opts: opts,
		log:  log.With().Str("component", "resultcache").Logger(),
		now:  time.Now,
	}
	if rdb != nil {
		c.cells = cellindex.NewRedisIndex(rdb)
	}
	return c, nil
}

func (c *Cache) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.OpTimeout)
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, string, bool) {
	if e, ok := c.l1.Get(key); ok {
		if c.now().Before(e.expires) {
			observability.IncCacheResult(cache.TierL1, "hit")
			return e.val, cache.TierL1, true
		}
		c.l1.Remove(key)
	}
	observability.IncCacheResult(cache.TierL1, "miss")

	if c.rdb == nil {
		return nil, "", false
	}
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	raw, ok, err := c.rdb.Get(octx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("redis get failed; treating as miss")
		observability.IncCacheResult(cache.TierL2, "error")
		return nil, "", false
	}
	if !ok {
		observability.IncCacheResult(cache.TierL2, "miss")
		return nil, "", false
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("undecodable cache entry; treating as miss")
		observability.IncCacheResult(cache.TierL2, "error")
		return nil, "", false
	}
	observability.IncCacheResult(cache.TierL2, "hit")
	c.l1.Add(key, entry{val: env.Body, meta: env.Meta, expires: c.now().Add(c.opts.TTL)})
	return env.Body, cache.TierL2, true
}

func (c *Cache) Put(ctx context.Context, key string, val []byte, meta cache.Meta) {
	c.l1.Add(key, entry{val: val, meta: meta, expires: c.now().Add(c.opts.TTL)})
	if c.rdb == nil {
		return
	}

	payload, err := json.Marshal(envelope{Meta: meta, Body: val})
	if err != nil {
		c.log.Error().Err(err).Str("key", key).Msg("encode cache entry")
		return
	}
	octx, cancel := c.opCtx(ctx)
	defer cancel()
	if err := c.rdb.Set(octx, key, payload, c.opts.TTL); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("redis set failed")
		return
	}

	tags := []string{keys.LayerTag(meta.Layer), keys.RasterTag(meta.Raster)}
	if len(meta.Cells) == 0 {
		tags = append(tags, keys.Unplaced(tags[0]), keys.Unplaced(tags[1]))
	}
	if err := c.rdb.AddToSets(octx, key, c.opts.TTL, tags...); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("redis tag failed")
		return
	}
	if len(meta.Cells) > 0 {
		if err := c.cells.Add(octx, c.opts.Res, meta.Cells, key, c.opts.TTL); err != nil {
			c.log.Warn().Err(err).Str("key", key).Int("cells", len(meta.Cells)).Msg("redis cell index failed")
		}
	}
}

// Invalidate drops matching results from both tiers. The count is the sum
// of L1 and L2 removals.
func (c *Cache) Invalidate(ctx context.Context, sel cache.Selector) (int, error) {
	if (sel.Layer == "") == (sel.Raster == "") {
		return 0, fmt.Errorf("invalidate: exactly one of layer and raster must be set")
	}

	removed := 0
	for _, k := range c.l1.Keys() {
		if e, ok := c.l1.Peek(k); ok && sel.Matches(e.meta) {
			if c.l1.Remove(k) {
				removed++
			}
		}
	}

	if c.rdb == nil {
		return removed, nil
	}
	n, err := c.invalidateL2(ctx, sel)
	return removed + n, err
}

func (c *Cache) invalidateL2(ctx context.Context, sel cache.Selector) (int, error) {
	tag := keys.LayerTag(sel.Layer)
	if sel.Raster != "" {
		tag = keys.RasterTag(sel.Raster)
	}
	unplaced := keys.Unplaced(tag)

	members, err := c.rdb.Members(ctx, tag)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	victims := members
	if sel.Cells != nil {
		inCells, err := c.cells.Lookup(ctx, c.opts.Res, sel.Cells)
		if err != nil {
			return 0, err
		}
		free, err := c.rdb.Members(ctx, unplaced)
		if err != nil {
			return 0, err
		}
		wanted := make(map[string]struct{}, len(inCells)+len(free))
		for _, k := range inCells {
			wanted[k] = struct{}{}
		}
		for _, k := range free {
			wanted[k] = struct{}{}
		}
		victims = victims[:0:0]
		for _, k := range members {
			if _, ok := wanted[k]; ok {
				victims = append(victims, k)
			}
		}
	}
	if len(victims) == 0 {
		return 0, nil
	}

	n, err := c.rdb.Del(ctx, victims...)
	if err != nil {
		return 0, err
	}
	if sel.Cells != nil {
		if err := c.cells.Remove(ctx, c.opts.Res, sel.Cells, victims); err != nil {
			c.log.Warn().Err(err).Msg("cell index cleanup failed")
		}
	}
	// Keys stay listed under the other input's tag and cells until their
	// TTL runs out; a dangling member only costs a no-op DEL later.
	if err := c.rdb.RemoveFromSets(ctx, victims, tag, unplaced); err != nil {
		c.log.Warn().Err(err).Str("tag", tag).Msg("tag cleanup failed")
	}
	return n, nil
}

// Len is the number of L1 entries.
func (c *Cache) Len() int { return c.l1.Len() }
