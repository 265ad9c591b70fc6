// Package keys builds the Redis keys of cached clip results and the sets
// that index them.
package keys

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const prefix = "rclip"

// ClipParams identifies one clip result: both inputs by id and content
// digest plus every option that changes the output.
type ClipParams struct {
	Raster       string
	RasterDigest uint64
	Layer        string
	LayerDigest  uint64
	Crop         bool
	AllTouched   bool
	Filled       bool
	FillValue    *float64
}

// Canonical is the normalized text hashed into the key.
func (p ClipParams) Canonical() string {
	var b strings.Builder
	b.Grow(96)
	fmt.Fprintf(&b, "rd=%016x;ld=%016x;crop=%t;touched=%t;filled=%t", p.RasterDigest, p.LayerDigest, p.Crop, p.AllTouched, p.Filled)
	if p.FillValue != nil {
		b.WriteString(";fill=")
		b.WriteString(strconv.FormatFloat(*p.FillValue, 'g', -1, 64))
	}
	return b.String()
}

// Clip is rclip:res:<raster>:<layer>:f=<hash of Canonical>.
func Clip(p ClipParams) string {
	sum := xxhash.Sum64String(p.Canonical())
	return fmt.Sprintf("%s:res:%s:%s:f=%016x", prefix, sanitize(p.Raster), sanitize(p.Layer), sum)
}

// LayerTag is the set of result keys computed from a layer.
func LayerTag(layer string) string {
	return prefix + ":tag:layer:" + sanitize(layer)
}

// RasterTag is the set of result keys computed from a raster.
func RasterTag(raster string) string {
	return prefix + ":tag:raster:" + sanitize(raster)
}

// Unplaced holds the result keys under tag that carry no cell footprint.
func Unplaced(tag string) string {
	return tag + ":nocells"
}

// Cell is the set of result keys whose footprint includes cell.
func Cell(res int, cell string) string {
	return fmt.Sprintf("%s:cell:%d:%s", prefix, res, sanitize(cell))
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// ':' included, so ids cannot forge extra key segments
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
