package model

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrEmptyGeometry    = errors.New("empty geometry")
	ErrNoOverlap        = errors.New("no overlap")
	ErrMissingFillValue = errors.New("missing fill value")

	// ErrNoSelection is returned when the index selects no polygons for the
	// raster extent. It matches ErrNoOverlap under errors.Is.
	ErrNoSelection = fmt.Errorf("%w: no polygons selected", ErrNoOverlap)
)

// Invalidf wraps ErrInvalidArgument with a formatted message.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// KindOf maps an error to a stable label for metrics, logs and HTTP bodies.
func KindOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrEmptyGeometry):
		return "empty_geometry"
	case errors.Is(err, ErrNoOverlap):
		return "no_overlap"
	case errors.Is(err, ErrMissingFillValue):
		return "missing_fill_value"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "internal"
	}
}

// StageOf distinguishes selection-stage from window-stage overlap failures.
func StageOf(err error) string {
	switch {
	case errors.Is(err, ErrNoSelection):
		return "selection"
	case errors.Is(err, ErrNoOverlap):
		return "window"
	default:
		return ""
	}
}
