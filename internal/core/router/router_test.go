package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/raster-clip/internal/core/config"
	"github.com/mohammed-shakir/raster-clip/internal/core/model"
	"github.com/mohammed-shakir/raster-clip/internal/service"
)

type fakeService struct {
	lastClip  model.ClipRequest
	lastLayer []byte
	clipErr   error
	rasterVer uint64
}

func (f *fakeService) PutRaster(_ context.Context, id string, req model.RasterRequest) (*model.RasterInfo, error) {
	if req.Width <= 0 {
		return nil, model.Invalidf("width must be positive")
	}
	f.rasterVer++
	return &model.RasterInfo{ID: id, Version: f.rasterVer, Width: req.Width, Height: req.Height}, nil
}

func (f *fakeService) PutLayer(_ context.Context, id string, body []byte) (*model.LayerInfo, error) {
	f.lastLayer = body
	return &model.LayerInfo{ID: id, Version: 1, Polygons: 1}, nil
}

func (f *fakeService) Raster(id string) (*model.RasterInfo, error) {
	return nil, fmt.Errorf("raster %s: %w", id, service.ErrNotFound)
}

func (f *fakeService) Layer(id string) (*model.LayerInfo, error) {
	return &model.LayerInfo{ID: id, Version: 1}, nil
}

func (f *fakeService) DeleteRaster(context.Context, string) error { return nil }

func (f *fakeService) DeleteLayer(_ context.Context, id string) error {
	return fmt.Errorf("layer %s: %w", id, service.ErrNotFound)
}

func (f *fakeService) Clip(_ context.Context, req model.ClipRequest) (*model.ClipResponse, error) {
	f.lastClip = req
	if f.clipErr != nil {
		return nil, f.clipErr
	}
	return &model.ClipResponse{Selected: 1, Total: 2, Shape: [3]int{1, 1, 1}, Mask: []string{"1"}, Cache: "miss"}, nil
}

func newTestRouter(t *testing.T, svc ClipService) http.Handler {
	t.Helper()
	cfg := config.FromEnv()
	cfg.MaxBodyBytes = 1 << 10
	r := chi.NewRouter()
	Mount(r, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, svc)
	return r
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, rd))
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var e model.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e
}

func TestPostClip_Dispatch(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rr := do(h, http.MethodPost, "/clip", `{"raster":"dem","layer":"parcels","crop":false,"all_touched":true,"fill_value":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if got := rr.Header().Get("X-Cache"); got != "miss" {
		t.Fatalf("X-Cache=%q", got)
	}
	req := svc.lastClip
	if req.Raster != "dem" || req.Layer != "parcels" || req.IsCropped() || !req.AllTouched || !req.IsFilled() {
		t.Fatalf("parsed request %+v", req)
	}
	if req.FillValue == nil || *req.FillValue != 0 {
		t.Fatalf("fill_value=%v", req.FillValue)
	}
}

func TestGetClip_QueryParams(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	rr := do(h, http.MethodGet, "/clip?raster=dem&layer=parcels&filled=false&all_touched=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	req := svc.lastClip
	if req.IsFilled() || !req.AllTouched || !req.IsCropped() || req.FillValue != nil {
		t.Fatalf("parsed request %+v", req)
	}
}

func TestClip_BadRequests(t *testing.T) {
	h := newTestRouter(t, &fakeService{})
	cases := []struct {
		name   string
		method string
		target string
		body   string
		code   int
	}{
		{"missing layer", http.MethodGet, "/clip?raster=dem", "", http.StatusBadRequest},
		{"bad bool", http.MethodGet, "/clip?raster=dem&layer=l&crop=maybe", "", http.StatusBadRequest},
		{"bad fill", http.MethodGet, "/clip?raster=dem&layer=l&fill_value=x", "", http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/clip", `{"raster":"dem","layer":"l","bogus":1}`, http.StatusBadRequest},
		{"not json", http.MethodPost, "/clip", `raster=dem`, http.StatusBadRequest},
		{"too large", http.MethodPost, "/clip", `{"raster":"` + strings.Repeat("a", 2048) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(h, tc.method, tc.target, tc.body)
			if rr.Code != tc.code {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tc.code, rr.Body)
			}
		})
	}
}

func TestClip_ErrorMapping(t *testing.T) {
	cases := []struct {
		err   error
		code  int
		kind  string
		stage string
	}{
		{model.ErrNoSelection, http.StatusUnprocessableEntity, "no_overlap", "selection"},
		{fmt.Errorf("clip window: %w", model.ErrNoOverlap), http.StatusUnprocessableEntity, "no_overlap", "window"},
		{fmt.Errorf("clip: %w", model.ErrMissingFillValue), http.StatusUnprocessableEntity, "missing_fill_value", ""},
		{fmt.Errorf("raster x: %w", service.ErrNotFound), http.StatusNotFound, "not_found", ""},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "deadline_exceeded", ""},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "internal", ""},
	}
	for _, tc := range cases {
		t.Run(tc.kind+"/"+tc.stage, func(t *testing.T) {
			h := newTestRouter(t, &fakeService{clipErr: tc.err})
			rr := do(h, http.MethodPost, "/clip", `{"raster":"dem","layer":"l"}`)
			if rr.Code != tc.code {
				t.Fatalf("status=%d want %d", rr.Code, tc.code)
			}
			e := decodeError(t, rr)
			if e.Kind != tc.kind || e.Stage != tc.stage {
				t.Fatalf("error body %+v", e)
			}
		})
	}
}

func TestInternalErrorHidesDetail(t *testing.T) {
	h := newTestRouter(t, &fakeService{clipErr: fmt.Errorf("redis at 10.0.0.1 refused")})
	rr := do(h, http.MethodPost, "/clip", `{"raster":"dem","layer":"l"}`)
	if e := decodeError(t, rr); strings.Contains(e.Error, "10.0.0.1") {
		t.Fatalf("internal detail leaked: %q", e.Error)
	}
}

func TestClip_NonFiniteFillRejected(t *testing.T) {
	for _, v := range []string{"NaN", "nan", "Inf", "-Inf", "+Infinity"} {
		t.Run(v, func(t *testing.T) {
			svc := &fakeService{}
			h := newTestRouter(t, svc)
			rr := do(h, http.MethodGet, "/clip?raster=dem&layer=parcels&fill_value="+v, "")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d want 400 body=%s", rr.Code, rr.Body)
			}
			if e := decodeError(t, rr); e.Kind != "invalid_argument" {
				t.Fatalf("kind=%q", e.Kind)
			}
			if svc.lastClip.Raster != "" {
				t.Fatalf("service called with %+v", svc.lastClip)
			}
		})
	}
}

func TestWriteJSON_EncodeFailureIsComplete500(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]float64{"v": math.NaN()})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
	if e := decodeError(t, rr); e.Kind != "internal" {
		t.Fatalf("error body %+v", e)
	}
}

func TestRasterRoutes(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	body := `{"transform":[1,0,0,0,-1,10],"width":2,"height":1,"bands":[[1,2]]}`
	if rr := do(h, http.MethodPut, "/rasters/dem", body); rr.Code != http.StatusCreated {
		t.Fatalf("first put status=%d body=%s", rr.Code, rr.Body)
	}
	if rr := do(h, http.MethodPut, "/rasters/dem", body); rr.Code != http.StatusOK {
		t.Fatalf("replace status=%d", rr.Code)
	}
	if rr := do(h, http.MethodPut, "/rasters/dem", `{"width":0}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid put status=%d", rr.Code)
	}
	if rr := do(h, http.MethodGet, "/rasters/dem", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("get status=%d", rr.Code)
	}
	if rr := do(h, http.MethodDelete, "/rasters/dem", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
}

func TestLayerRoutes(t *testing.T) {
	svc := &fakeService{}
	h := newTestRouter(t, svc)

	geo := `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`
	if rr := do(h, http.MethodPut, "/layers/parcels", geo); rr.Code != http.StatusCreated {
		t.Fatalf("put status=%d body=%s", rr.Code, rr.Body)
	}
	if string(svc.lastLayer) != geo {
		t.Fatalf("layer body not forwarded: %q", svc.lastLayer)
	}
	if rr := do(h, http.MethodGet, "/layers/parcels", ""); rr.Code != http.StatusOK {
		t.Fatalf("get status=%d", rr.Code)
	}
	rr := do(h, http.MethodDelete, "/layers/parcels", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if e := decodeError(t, rr); e.Kind != "not_found" {
		t.Fatalf("kind=%q", e.Kind)
	}
	big := strings.Repeat(" ", 2048)
	if rr := do(h, http.MethodPut, "/layers/parcels", big); rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized layer status=%d", rr.Code)
	}
}
