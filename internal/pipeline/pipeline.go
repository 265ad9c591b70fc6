// Package pipeline runs the index-then-clip flow: bulk load an index over a
// polygon set, select the polygons touching the raster extent and hand them
// to the clip engine.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/raster-clip/internal/clip"
	"github.com/mohammed-shakir/raster-clip/internal/core/model"
	"github.com/mohammed-shakir/raster-clip/internal/core/observability"
	"github.com/mohammed-shakir/raster-clip/internal/geom"
	"github.com/mohammed-shakir/raster-clip/internal/raster"
	"github.com/mohammed-shakir/raster-clip/internal/spatialindex"
)

type Timings struct {
	Index  time.Duration
	Select time.Duration
	Clip   time.Duration
}

type Outcome struct {
	// Selected is the number of polygons the index returned for the raster
	// extent; Total is the size of the input set.
	Selected int
	Total    int
	// Candidates holds the selected indices into the input set, ascending.
	Candidates []int
	Result     *clip.Result
	Timings    Timings
}

type Coordinator struct {
	IndexOptions spatialindex.Options
	Engine       *clip.Engine
	log          zerolog.Logger
}

func New(idx spatialindex.Options, eng *clip.Engine, log zerolog.Logger) *Coordinator {
	if eng == nil {
		eng = clip.NewEngine(0)
	}
	return &Coordinator{
		IndexOptions: idx,
		Engine:       eng,
		log:          log.With().Str("component", "pipeline").Logger(),
	}
}

// RunClip indexes set, selects candidates for d's extent and clips src.
func (c *Coordinator) RunClip(
	ctx context.Context,
	set geom.PolygonSet,
	d raster.Descriptor,
	src raster.PixelSource,
	opts clip.Options,
) (*Outcome, error) {
	start := time.Now()
	idx, err := spatialindex.Build(set, c.IndexOptions)
	if err != nil {
		c.finish(err)
		return nil, fmt.Errorf("build index: %w", err)
	}
	built := time.Since(start)
	observability.ObserveIndexBuild(built.Seconds())
	observability.ObserveClipStage("index", built.Seconds())

	out, err := c.RunIndexed(ctx, idx, set, d, src, opts)
	if out != nil {
		out.Timings.Index = built
	}
	return out, err
}

// RunIndexed is RunClip with an index already built over set.
func (c *Coordinator) RunIndexed(
	ctx context.Context,
	idx *spatialindex.Index,
	set geom.PolygonSet,
	d raster.Descriptor,
	src raster.PixelSource,
	opts clip.Options,
) (*Outcome, error) {
	if idx == nil {
		err := model.Invalidf("index is nil")
		c.finish(err)
		return nil, err
	}
	if idx.Len() != set.Len() {
		err := model.Invalidf("index covers %d polygons, set has %d", idx.Len(), set.Len())
		c.finish(err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		c.finish(err)
		return nil, err
	}

	out := &Outcome{Total: set.Len()}

	start := time.Now()
	hits, err := idx.Query(d.ExtentBox())
	out.Timings.Select = time.Since(start)
	observability.ObserveClipStage("select", out.Timings.Select.Seconds())
	if err != nil {
		c.finish(err)
		return nil, fmt.Errorf("select: %w", err)
	}
	out.Selected = len(hits)
	out.Candidates = hits
	observability.ObserveSelected(out.Selected)

	if len(hits) == 0 {
		c.log.Debug().
			Int("total", out.Total).
			Str("extent", d.ExtentBox().String()).
			Msg("no polygons selected")
		c.finish(model.ErrNoSelection)
		return out, model.ErrNoSelection
	}

	start = time.Now()
	res, err := c.Engine.Clip(ctx, set.Subset(hits), d, src, opts)
	out.Timings.Clip = time.Since(start)
	observability.ObserveClipStage("clip", out.Timings.Clip.Seconds())
	c.finish(err)
	if err != nil {
		return out, err
	}
	out.Result = res

	shape := res.Shape()
	c.log.Debug().
		Int("selected", out.Selected).
		Int("total", out.Total).
		Str("window", res.Window.String()).
		Ints("shape", shape[:]).
		Dur("select", out.Timings.Select).
		Dur("clip", out.Timings.Clip).
		Msg("clip done")
	return out, nil
}

func (c *Coordinator) finish(err error) {
	observability.ObserveClipRun(model.KindOf(err))
}
