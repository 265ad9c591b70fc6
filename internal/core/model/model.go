// Package model defines the error kinds and request types shared across the service.
package model

import "math"

// CheckFinite rejects NaN and infinite values, which JSON cannot encode.
// A nil v passes.
func CheckFinite(name string, v *float64) error {
	if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
		return Invalidf("%s must be finite, got %v", name, *v)
	}
	return nil
}

// ClipRequest is the decoded body of a clip call.
type ClipRequest struct {
	Raster     string   `json:"raster"`
	Layer      string   `json:"layer"`
	Crop       *bool    `json:"crop,omitempty"`
	AllTouched bool     `json:"all_touched"`
	Filled     *bool    `json:"filled,omitempty"`
	FillValue  *float64 `json:"fill_value,omitempty"`
}

// IsCropped reports the effective crop flag; absent means crop.
func (r ClipRequest) IsCropped() bool {
	if r.Crop == nil {
		return true
	}
	return *r.Crop
}

// IsFilled reports the effective fill flag; absent means filled.
func (r ClipRequest) IsFilled() bool {
	if r.Filled == nil {
		return true
	}
	return *r.Filled
}

type WindowJSON struct {
	ColOff int `json:"col_off"`
	RowOff int `json:"row_off"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ClipResponse is the wire form of a clip result. Mask rows are strings of '0'/'1'.
type ClipResponse struct {
	Selected  int         `json:"selected"`
	Total     int         `json:"total"`
	Window    WindowJSON  `json:"window"`
	Transform [6]float64  `json:"transform"`
	Shape     [3]int      `json:"shape"`
	Mask      []string    `json:"mask"`
	Bands     [][]float64 `json:"bands"`
	Fill      *float64    `json:"fill,omitempty"`
	Cache     string      `json:"cache,omitempty"`
}

// RasterRequest uploads an in-memory raster. Transform is (A..F) unless
// TransformOrder is "gdal".
type RasterRequest struct {
	Transform      [6]float64  `json:"transform"`
	TransformOrder string      `json:"transform_order,omitempty"`
	Width          int         `json:"width"`
	Height         int         `json:"height"`
	NoData         *float64    `json:"nodata,omitempty"`
	CRS            string      `json:"crs,omitempty"`
	Bands          [][]float64 `json:"bands"`
}

type RasterInfo struct {
	ID      string     `json:"id"`
	Version uint64     `json:"version"`
	Width   int        `json:"width"`
	Height  int        `json:"height"`
	Bands   int        `json:"bands"`
	CRS     string     `json:"crs,omitempty"`
	Extent  [4]float64 `json:"extent"`
	Digest  string     `json:"digest"`
}

type LayerInfo struct {
	ID       string      `json:"id"`
	Version  uint64      `json:"version"`
	Polygons int         `json:"polygons"`
	Height   int         `json:"index_height"`
	Bounds   *[4]float64 `json:"bounds,omitempty"`
	Digest   string      `json:"digest"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Stage string `json:"stage,omitempty"`
}
