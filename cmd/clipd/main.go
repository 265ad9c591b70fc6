package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohammed-shakir/raster-clip/internal/cache"
	"github.com/mohammed-shakir/raster-clip/internal/cache/redisstore"
	"github.com/mohammed-shakir/raster-clip/internal/cache/resultcache"
	"github.com/mohammed-shakir/raster-clip/internal/catalog"
	"github.com/mohammed-shakir/raster-clip/internal/clip"
	"github.com/mohammed-shakir/raster-clip/internal/core/config"
	"github.com/mohammed-shakir/raster-clip/internal/core/health"
	"github.com/mohammed-shakir/raster-clip/internal/core/observability"
	"github.com/mohammed-shakir/raster-clip/internal/core/server"
	"github.com/mohammed-shakir/raster-clip/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/raster-clip/internal/logger"
	h3mapper "github.com/mohammed-shakir/raster-clip/internal/mapper/h3"
	"github.com/mohammed-shakir/raster-clip/internal/metrics"
	"github.com/mohammed-shakir/raster-clip/internal/pipeline"
	"github.com/mohammed-shakir/raster-clip/internal/service"
	"github.com/mohammed-shakir/raster-clip/internal/spatialindex"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "raster-clip",
		Component: "clipd",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mp *metrics.Provider
	if cfg.MetricsEnabled {
		mp = metrics.Init(metrics.Config{
			Enabled: true,
			Path:    cfg.MetricsPath,
			Build:   metrics.ReadBuildInfo(Version),
		})
	} else {
		observability.Init(nil, false)
	}

	appLog.Info("starting clipd",
		"addr", cfg.Addr,
		"version", Version,
		"cache", cfg.CacheEnabled,
		"invalidation", cfg.Invalidation.Enabled,
		"workers", cfg.ClipWorkers,
		"h3_res", cfg.H3Res)

	idxOpts := spatialindex.Options{
		Branching:   cfg.IndexBranching,
		LeafSize:    cfg.IndexLeafSize,
		Parallelism: cfg.ClipWorkers,
	}
	coord := pipeline.New(idxOpts, clip.NewEngine(cfg.ClipWorkers), zl.With().Str("component", "pipeline").Logger())
	mapper := h3mapper.New()

	var (
		resCache cache.Interface
		rdb      *redisstore.Client
	)
	if cfg.CacheEnabled {
		var err error
		rdb, err = redisstore.New(ctx, cfg.RedisAddr, redisstore.WithReadTimeout(cfg.CacheOpTimeout), redisstore.WithWriteTimeout(cfg.CacheOpTimeout))
		if err != nil {
			// L1 still serves; L2 and cross-instance invalidation are lost.
			appLog.Warn("redis unavailable, running with in-process cache only", "addr", cfg.RedisAddr, "err", err)
			rdb = nil
		}
		rc, err := resultcache.New(resultcache.Options{
			Size:      cfg.CacheLRUSize,
			TTL:       cfg.CacheTTL,
			OpTimeout: cfg.CacheOpTimeout,
			Res:       cfg.H3Res,
		}, rdb, zl.With().Str("component", "resultcache").Logger())
		if err != nil {
			appLog.Error("result cache setup failed", "err", err)
			return 1
		}
		resCache = rc
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	svc := service.New(catalog.New(idxOpts), coord, resCache, mapper, cfg.H3Res, appLog)

	var ready health.ReadinessReporter
	if cfg.Invalidation.Enabled {
		if resCache == nil {
			appLog.Error("invalidation needs CACHE_ENABLED=true")
			return 1
		}
		cons := kafkaconsumer.New(kafkaconsumer.FromConfig(cfg), appLog, resCache, mapper)
		if err := cons.Start(ctx); err != nil {
			appLog.Error("invalidation consumer failed to start", "err", err)
			return 1
		}
		defer cons.Stop()
		ready = cons
	}

	if err := server.Run(ctx, cfg, appLog, server.Deps{Service: svc, Metrics: mp, Ready: ready}); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
