package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/raster-clip/internal/core/config"
	"github.com/mohammed-shakir/raster-clip/internal/core/model"
	"github.com/mohammed-shakir/raster-clip/internal/core/observability"
	"github.com/mohammed-shakir/raster-clip/internal/service"
)

// ClipService is what the routes call into; *service.Service implements it.
type ClipService interface {
	PutRaster(ctx context.Context, id string, req model.RasterRequest) (*model.RasterInfo, error)
	PutLayer(ctx context.Context, id string, body []byte) (*model.LayerInfo, error)
	Raster(id string) (*model.RasterInfo, error)
	Layer(id string) (*model.LayerInfo, error)
	DeleteRaster(ctx context.Context, id string) error
	DeleteLayer(ctx context.Context, id string) error
	Clip(ctx context.Context, req model.ClipRequest) (*model.ClipResponse, error)
}

type handlers struct {
	log *slog.Logger
	cfg config.Config
	svc ClipService
}

// Mount registers the raster, layer and clip routes on r.
func Mount(r chi.Router, logger *slog.Logger, cfg config.Config, svc ClipService) {
	h := &handlers{log: logger, cfg: cfg, svc: svc}

	r.Route("/rasters/{id}", func(r chi.Router) {
		r.Put("/", observe("/rasters/{id}", h.putRaster))
		r.Get("/", observe("/rasters/{id}", h.getRaster))
		r.Delete("/", observe("/rasters/{id}", h.deleteRaster))
	})
	r.Route("/layers/{id}", func(r chi.Router) {
		r.Put("/", observe("/layers/{id}", h.putLayer))
		r.Get("/", observe("/layers/{id}", h.getLayer))
		r.Delete("/", observe("/layers/{id}", h.deleteLayer))
	})
	r.Post("/clip", observe("/clip", h.clipBody))
	r.Get("/clip", observe("/clip", h.clipQuery))
}

// observe records the request count and latency under a fixed route label.
func observe(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (h *handlers) putRaster(w http.ResponseWriter, r *http.Request) {
	var req model.RasterRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	info, err := h.svc.PutRaster(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, created(info.Version), info)
}

func (h *handlers) getRaster(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Raster(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handlers) deleteRaster(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRaster(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) putLayer(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	if err != nil {
		h.fail(w, r, bodyError(err))
		return
	}
	info, err := h.svc.PutLayer(r.Context(), chi.URLParam(r, "id"), body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, created(info.Version), info)
}

func (h *handlers) getLayer(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.Layer(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handlers) deleteLayer(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteLayer(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) clipBody(w http.ResponseWriter, r *http.Request) {
	var req model.ClipRequest
	if err := h.decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validateClip(req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.clip(w, r, req)
}

func (h *handlers) clipQuery(w http.ResponseWriter, r *http.Request) {
	req, err := ParseClipQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.clip(w, r, req)
}

func (h *handlers) clip(w http.ResponseWriter, r *http.Request, req model.ClipRequest) {
	resp, err := h.svc.Clip(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if resp.Cache != "" {
		w.Header().Set("X-Cache", resp.Cache)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ParseClipQuery reads a clip request from URL parameters:
// raster, layer, crop, all_touched, filled, fill_value.
func ParseClipQuery(r *http.Request) (model.ClipRequest, error) {
	q := r.URL.Query()
	req := model.ClipRequest{
		Raster: strings.TrimSpace(q.Get("raster")),
		Layer:  strings.TrimSpace(q.Get("layer")),
	}
	var err error
	if req.Crop, err = optBool(q.Get("crop")); err != nil {
		return req, model.Invalidf("crop: %v", err)
	}
	if req.Filled, err = optBool(q.Get("filled")); err != nil {
		return req, model.Invalidf("filled: %v", err)
	}
	touched, err := optBool(q.Get("all_touched"))
	if err != nil {
		return req, model.Invalidf("all_touched: %v", err)
	}
	req.AllTouched = touched != nil && *touched
	if raw := strings.TrimSpace(q.Get("fill_value")); raw != "" {
		v, err := parseFloat(raw)
		if err != nil {
			return req, model.Invalidf("fill_value: %v", err)
		}
		req.FillValue = &v
	}
	return req, validateClip(req)
}

func validateClip(req model.ClipRequest) error {
	switch {
	case req.Raster == "":
		return model.Invalidf("missing required parameter: raster")
	case req.Layer == "":
		return model.Invalidf("missing required parameter: layer")
	}
	return model.CheckFinite("fill_value", req.FillValue)
}

func optBool(v string) (*bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("parse bool: %w", err)
	}
	return &b, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return bodyError(err)
	}
	return nil
}

var errBodyTooLarge = errors.New("request body too large")

func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w (limit %d bytes)", errBodyTooLarge, mbe.Limit)
	}
	return model.Invalidf("decode body: %v", err)
}

// StatusOf maps an error to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNoOverlap),
		errors.Is(err, model.ErrEmptyGeometry),
		errors.Is(err, model.ErrMissingFillValue):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusOf(err)
	kind := model.KindOf(err)
	switch {
	case errors.Is(err, service.ErrNotFound):
		kind = "not_found"
	case errors.Is(err, errBodyTooLarge):
		kind = "body_too_large"
	}
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		h.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
		msg = http.StatusText(code)
	} else {
		h.log.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", code, "err", err)
	}
	writeJSON(w, code, model.ErrorResponse{Error: msg, Kind: kind, Stage: model.StageOf(err)})
}

func created(version uint64) int {
	if version == 1 {
		return http.StatusCreated
	}
	return http.StatusOK
}

// writeJSON encodes before writing the header so an encode failure still
// yields a complete 500 response.
func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		code = http.StatusInternalServerError
		b, _ = json.Marshal(model.ErrorResponse{Error: http.StatusText(code), Kind: model.KindOf(err)})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(b, '\n'))
}
