package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "CACHE_ENABLED", "CACHE_TTL", "H3_RES", "INDEX_BRANCHING", "INVALIDATION_ENABLED"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Addr != ":8090" {
		t.Fatalf("Addr=%q", cfg.Addr)
	}
	if cfg.CacheEnabled {
		t.Fatalf("cache must default to disabled")
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Fatalf("CacheTTL=%v", cfg.CacheTTL)
	}
	if cfg.H3Res != 7 || cfg.IndexBranching != 16 || cfg.ClipWorkers < 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Invalidation.Enabled || cfg.Invalidation.Topic != "raster-clip-invalidation" {
		t.Fatalf("invalidation defaults: %+v", cfg.Invalidation)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ADDR", ":1234")
	t.Setenv("CACHE_ENABLED", "yes")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("H3_RES", "22")
	t.Setenv("CLIP_WORKERS", "-4")
	t.Setenv("INDEX_LEAF_SIZE", "not-a-number")
	t.Setenv("INVALIDATION_ENABLED", "1")

	cfg := FromEnv()
	if cfg.Addr != ":1234" || !cfg.CacheEnabled || cfg.CacheTTL != 90*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.H3Res != 15 {
		t.Fatalf("H3Res must clamp to 15, got %d", cfg.H3Res)
	}
	if cfg.ClipWorkers != 1 {
		t.Fatalf("ClipWorkers must clamp to 1, got %d", cfg.ClipWorkers)
	}
	if cfg.IndexLeafSize != 16 {
		t.Fatalf("bad int must fall back to default, got %d", cfg.IndexLeafSize)
	}
	if !cfg.Invalidation.Enabled {
		t.Fatalf("invalidation must be enabled")
	}
}
