// Command clipbench times polygon selection and raster clipping on a
// synthetic polygon grid and raster, or on a GeoJSON layer read from disk.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/raster-clip/internal/clip"
	"github.com/mohammed-shakir/raster-clip/internal/core/model"
	"github.com/mohammed-shakir/raster-clip/internal/geojsonio"
	"github.com/mohammed-shakir/raster-clip/internal/geom"
	"github.com/mohammed-shakir/raster-clip/internal/logger"
	"github.com/mohammed-shakir/raster-clip/internal/pipeline"
	"github.com/mohammed-shakir/raster-clip/internal/raster"
	"github.com/mohammed-shakir/raster-clip/internal/spatialindex"
)

type options struct {
	width, height int
	bands         int
	grid          int
	cell          float64
	offsetX       float64
	offsetY       float64
	layer         string
	dumpSelected  string
	allTouched    bool
	workers       int
	branching     int
	leaf          int
	runs          int
	seed          uint64
	logLevel      string
}

func main() {
	os.Exit(run())
}

func run() int {
	var o options
	flag.IntVar(&o.width, "width", 4096, "raster width in pixels")
	flag.IntVar(&o.height, "height", 4096, "raster height in pixels")
	flag.IntVar(&o.bands, "bands", 3, "raster band count")
	flag.IntVar(&o.grid, "grid", 200, "polygons per side of the synthetic grid")
	flag.Float64Var(&o.cell, "cell", 40, "grid cell size in map units")
	flag.Float64Var(&o.offsetX, "offset-x", 0, "shift the polygon grid by this many map units in x")
	flag.Float64Var(&o.offsetY, "offset-y", 0, "shift the polygon grid by this many map units in y")
	flag.StringVar(&o.layer, "layer", "", "GeoJSON layer to use instead of the synthetic grid")
	flag.StringVar(&o.dumpSelected, "dump-selected", "", "write the selected polygons of the last run to this GeoJSON file")
	flag.BoolVar(&o.allTouched, "all-touched", false, "select every pixel a polygon touches")
	flag.IntVar(&o.workers, "workers", 0, "clip workers (0 = GOMAXPROCS)")
	flag.IntVar(&o.branching, "branching", 16, "index branching factor")
	flag.IntVar(&o.leaf, "leaf", 16, "index leaf size")
	flag.IntVar(&o.runs, "runs", 1, "timed repetitions")
	flag.Uint64Var(&o.seed, "seed", 1, "seed for synthetic pixel values")
	flag.StringVar(&o.logLevel, "log-level", "info", "debug|info|warn|error")
	flag.Parse()

	zl := logger.Build(logger.Config{Level: o.logLevel, Console: true, Component: "clipbench"}, os.Stderr)
	if err := bench(context.Background(), o, zl); err != nil {
		zl.Error().Err(err).Msg("benchmark failed")
		return 1
	}
	return 0
}

func bench(ctx context.Context, o options, zl zerolog.Logger) error {
	if o.runs < 1 {
		o.runs = 1
	}

	fmt.Println("\n--- Preparation (not timed) ---")
	layer, err := loadPolygons(o)
	if err != nil {
		return err
	}
	set := layer.Polygons
	d, src, err := syntheticRaster(o)
	if err != nil {
		return err
	}
	zl.Info().
		Int("polygons", set.Len()).
		Str("raster", d.String()).
		Int("bands", src.Bands()).
		Msg("inputs ready")

	coord := pipeline.New(
		spatialindex.Options{Branching: o.branching, LeafSize: o.leaf, Parallelism: o.workers},
		clip.NewEngine(o.workers),
		zl,
	)
	nd, _ := d.NoData()
	opts := clip.Options{Crop: true, AllTouched: o.allTouched, Filled: true, FillValue: &nd}

	var last *pipeline.Outcome
	for i := range o.runs {
		if o.runs > 1 {
			fmt.Printf("\n### run %d/%d\n", i+1, o.runs)
		}
		start := time.Now()
		out, err := coord.RunClip(ctx, set, d, src, opts)
		total := time.Since(start)
		if err != nil && !errors.Is(err, model.ErrNoSelection) {
			return err
		}
		report(out, opts, total)
		last = out
		zl.Debug().
			Dur("index", out.Timings.Index).
			Dur("select", out.Timings.Select).
			Dur("clip", out.Timings.Clip).
			Dur("total", total).
			Msg("run timings")
	}
	fmt.Println("\nBenchmark finished.")

	if o.dumpSelected != "" && last != nil {
		if err := dumpSelected(o.dumpSelected, layer, last.Candidates); err != nil {
			return err
		}
		zl.Info().Str("path", o.dumpSelected).Int("polygons", len(last.Candidates)).Msg("selected polygons written")
	}
	return nil
}

func dumpSelected(path string, l *geojsonio.Layer, hits []int) error {
	sel := &geojsonio.Layer{Polygons: l.Polygons.Subset(hits), FeatureIDs: make([]string, len(hits))}
	for i, h := range hits {
		sel.FeatureIDs[i] = l.FeatureIDs[h]
	}
	b, err := geojsonio.Encode(sel)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write selection: %w", err)
	}
	return nil
}

func report(out *pipeline.Outcome, opts clip.Options, total time.Duration) {
	rule := strings.Repeat("=", 60)
	selection := out.Timings.Index + out.Timings.Select

	fmt.Printf("\n%s\nTEST 1: Spatial index selection (bounding box intersection)\n%s\n", rule, rule)
	fmt.Printf("Selection time:        %.4f seconds\n", selection.Seconds())
	fmt.Printf("Total polygons:        %s\n", humanize.Comma(int64(out.Total)))
	fmt.Printf("Selected polygons:     %s\n", humanize.Comma(int64(out.Selected)))

	fmt.Printf("\n%s\nTEST 2: Raster clip (%s cutline)\n%s\n", rule, cutline(opts.Rule()), rule)
	if out.Result == nil {
		fmt.Println("No polygons intersect raster. Clip skipped.")
		return
	}
	shape := out.Result.Shape()
	fmt.Printf("Clip time:             %.4f seconds\n", out.Timings.Clip.Seconds())
	fmt.Printf("Output array shape:    (%d, %d, %d)\n", shape[0], shape[1], shape[2])
	fmt.Printf("Output array size:     %s\n", humanize.IBytes(uint64(shape[0]*shape[1]*shape[2])*8))
	fmt.Printf("Masked pixels:         %s\n", humanize.Comma(int64(out.Result.Mask.Count())))
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("TOTAL TIME (Index + Clip): %.4f seconds\n", (selection + out.Timings.Clip).Seconds())
	fmt.Printf("Wall time:                 %.4f seconds\n", total.Seconds())
}

func cutline(r geom.Rule) string {
	if r == geom.AllTouched {
		return "all-touched"
	}
	return "center-of-pixel"
}

func loadPolygons(o options) (*geojsonio.Layer, error) {
	if o.layer != "" {
		data, err := os.ReadFile(o.layer)
		if err != nil {
			return nil, fmt.Errorf("read layer: %w", err)
		}
		l, err := geojsonio.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", o.layer, err)
		}
		return l, nil
	}
	if o.grid <= 0 || o.cell <= 0 {
		return nil, fmt.Errorf("grid and cell must be positive (got %d, %g)", o.grid, o.cell)
	}

	// Squares with a 10% gutter so neighbours never share an edge.
	l := &geojsonio.Layer{
		Polygons:   make(geom.PolygonSet, 0, o.grid*o.grid),
		FeatureIDs: make([]string, 0, o.grid*o.grid),
	}
	side := o.cell * 0.9
	for row := range o.grid {
		for col := range o.grid {
			x := o.offsetX + float64(col)*o.cell
			y := o.offsetY + float64(row)*o.cell
			p, err := geom.NewPolygon([]geom.Point{
				{X: x, Y: y}, {X: x + side, Y: y}, {X: x + side, Y: y + side}, {X: x, Y: y + side},
			})
			if err != nil {
				return nil, err
			}
			l.Polygons = append(l.Polygons, p)
			l.FeatureIDs = append(l.FeatureIDs, fmt.Sprintf("r%d_c%d", row, col))
		}
	}
	return l, nil
}

// syntheticRaster covers [0,width]x[0,height] with unit pixels.
func syntheticRaster(o options) (raster.Descriptor, *raster.Grid, error) {
	nd := -9999.0
	d, err := raster.NewDescriptor(raster.NorthUp(0, float64(o.height), 1, 1), o.width, o.height, &nd)
	if err != nil {
		return raster.Descriptor{}, nil, err
	}
	if o.bands < 1 {
		return raster.Descriptor{}, nil, fmt.Errorf("bands must be positive (got %d)", o.bands)
	}
	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))
	bands := make([][]float64, o.bands)
	for b := range bands {
		band := make([]float64, o.width*o.height)
		for i := range band {
			band[i] = float64(rng.IntN(256))
		}
		bands[b] = band
	}
	g, err := raster.NewGrid(o.width, o.height, bands...)
	if err != nil {
		return raster.Descriptor{}, nil, err
	}
	return d, g, nil
}
