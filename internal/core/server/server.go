package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/raster-clip/internal/core/config"
	"github.com/mohammed-shakir/raster-clip/internal/core/health"
	middleware "github.com/mohammed-shakir/raster-clip/internal/core/middleware"
	"github.com/mohammed-shakir/raster-clip/internal/core/router"
	"github.com/mohammed-shakir/raster-clip/internal/metrics"
)

// Deps are the collaborators the HTTP layer serves. Metrics and Ready may
// be nil.
type Deps struct {
	Service router.ClipService
	Metrics *metrics.Provider
	Ready   health.ReadinessReporter
}

// Handler builds the API router.
func Handler(cfg config.Config, logger *slog.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(deps.Ready))
	if metricsInline(cfg, deps.Metrics) {
		r.Handle(deps.Metrics.Path(), deps.Metrics.Handler())
	}
	router.Mount(r, logger, cfg, deps.Service)
	return r
}

// metricsInline reports whether /metrics shares the API listener.
func metricsInline(cfg config.Config, p *metrics.Provider) bool {
	return p != nil && p.Enabled() && (cfg.MetricsAddr == "" || cfg.MetricsAddr == cfg.Addr)
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, deps Deps) error {
	srv := newServer(cfg.Addr, Handler(cfg, logger, deps))

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var msrv *http.Server
	if p := deps.Metrics; p != nil && p.Enabled() && !metricsInline(cfg, p) {
		mux := http.NewServeMux()
		mux.Handle(p.Path(), p.Handler())
		msrv = newServer(cfg.MetricsAddr, mux)
		go func() {
			logger.Info("metrics listen", "addr", cfg.MetricsAddr, "path", p.Path())
			if err := msrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if msrv != nil {
			_ = msrv.Shutdown(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
