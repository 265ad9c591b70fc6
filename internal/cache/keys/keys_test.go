package keys

import (
	"regexp"
	"strings"
	"testing"
	"unicode"
)

func params() ClipParams {
	return ClipParams{
		Raster: "dem", RasterDigest: 0xabc,
		Layer: "parcels", LayerDigest: 0xdef,
		Crop: true, Filled: true,
	}
}

func TestDeterminism_SameInputsSameKey(t *testing.T) {
	if Clip(params()) != Clip(params()) {
		t.Fatalf("determinism failed")
	}
}

func TestDifference_EveryParamChangesKey(t *testing.T) {
	base := Clip(params())
	fill := -1.0
	zero := 0.0
	variants := map[string]func(*ClipParams){
		"raster digest": func(p *ClipParams) { p.RasterDigest++ },
		"layer digest":  func(p *ClipParams) { p.LayerDigest++ },
		"layer":         func(p *ClipParams) { p.Layer = "roads" },
		"crop":          func(p *ClipParams) { p.Crop = false },
		"all touched":   func(p *ClipParams) { p.AllTouched = true },
		"filled":        func(p *ClipParams) { p.Filled = false },
		"fill value":    func(p *ClipParams) { p.FillValue = &fill },
	}
	seen := map[string]string{base: "base"}
	for name, mut := range variants {
		p := params()
		mut(&p)
		k := Clip(p)
		if other, dup := seen[k]; dup {
			t.Fatalf("%s produced the same key as %s: %s", name, other, k)
		}
		seen[k] = name
	}

	a, b := params(), params()
	a.FillValue, b.FillValue = &zero, nil
	if Clip(a) == Clip(b) {
		t.Fatalf("explicit zero fill must differ from no fill value")
	}
}

func TestKeyShape_ASCIIAndSegments(t *testing.T) {
	p := params()
	p.Raster = "höjd modell"
	p.Layer = "a:b"
	k := Clip(p)
	for _, r := range k {
		if r > unicode.MaxASCII {
			t.Fatalf("non-ASCII rune leaked into key: %q in %s", r, k)
		}
	}
	if !regexp.MustCompile(`^rclip:res:[A-Za-z0-9._\-]+:[A-Za-z0-9._\-]+:f=[0-9a-f]{16}$`).MatchString(k) {
		t.Fatalf("unexpected key shape: %s", k)
	}
	if strings.Count(k, ":") != 4 {
		t.Fatalf("ids must not add segments: %s", k)
	}
}

func TestTagAndCellKeys(t *testing.T) {
	if got := LayerTag("parcels"); got != "rclip:tag:layer:parcels" {
		t.Fatalf("LayerTag=%s", got)
	}
	if got := Unplaced(RasterTag("dem")); got != "rclip:tag:raster:dem:nocells" {
		t.Fatalf("Unplaced=%s", got)
	}
	if got := Cell(7, "871f1d489ffffff"); got != "rclip:cell:7:871f1d489ffffff" {
		t.Fatalf("Cell=%s", got)
	}
}
