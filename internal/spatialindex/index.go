// Package spatialindex is a bulk-loaded bounding-box tree over a PolygonSet.
//
// The tree is built once, top-down: at each level the entries are split along
// the axis where their box centres spread the most, into groups no larger
// than the capacity of a subtree one level down. Every leaf ends up at the
// same depth. The index stores polygon indices only and is read-only after
// Build, so concurrent queries need no locking.
package spatialindex

import (
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/raster-clip/internal/core/model"
	"github.com/mohammed-shakir/raster-clip/internal/geom"
)

const (
	DefaultBranching = 16
	DefaultLeafSize  = 16

	// subtrees smaller than this are built on the calling goroutine
	parallelThreshold = 4096
)

type Options struct {
	// Branching is the maximum number of children of an internal node.
	Branching int
	// LeafSize is the maximum number of entries in a leaf.
	LeafSize int
	// Parallelism bounds the goroutines used by Build; <= 1 builds sequentially.
	Parallelism int
}

func DefaultOptions() Options {
	return Options{
		Branching:   DefaultBranching,
		LeafSize:    DefaultLeafSize,
		Parallelism: runtime.GOMAXPROCS(0),
	}
}

func (o Options) normalize() (Options, error) {
	if o.Branching == 0 {
		o.Branching = DefaultBranching
	}
	if o.LeafSize == 0 {
		o.LeafSize = DefaultLeafSize
	}
	if o.Branching < 2 {
		return o, model.Invalidf("branching must be >= 2 (got %d)", o.Branching)
	}
	if o.LeafSize < 1 {
		return o, model.Invalidf("leaf size must be >= 1 (got %d)", o.LeafSize)
	}
	return o, nil
}

type entry struct {
	box geom.BBox
	idx int
}

type node struct {
	box      geom.BBox
	children []*node
	entries  []entry
}

func (n *node) leaf() bool { return n.children == nil }

type Index struct {
	root   *node
	size   int
	height int
}

// Build bulk-loads an index over set. An empty set yields an empty index.
func Build(set geom.PolygonSet, opts Options) (*Index, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return &Index{}, nil
	}

	es := make([]entry, len(set))
	for i, p := range set {
		if p == nil {
			return nil, model.Invalidf("polygon %d is nil", i)
		}
		es[i] = entry{box: p.BBox(), idx: i}
	}

	height, capacity := 1, opts.LeafSize
	for capacity < len(es) {
		capacity *= opts.Branching
		height++
	}

	b := &builder{opts: opts}
	if opts.Parallelism > 1 && len(es) >= parallelThreshold {
		b.g = new(errgroup.Group)
		b.g.SetLimit(opts.Parallelism)
	}
	root := &node{}
	b.build(root, es, height, capacity)
	if b.g != nil {
		_ = b.g.Wait()
	}
	computeBoxes(root)

	return &Index{root: root, size: len(es), height: height}, nil
}

type builder struct {
	opts Options
	g    *errgroup.Group
}

// build fills n from es; capacity is the entry capacity of a subtree at level.
func (b *builder) build(n *node, es []entry, level, capacity int) {
	if level == 1 {
		n.entries = es
		return
	}
	childCap := capacity / b.opts.Branching
	groups := (len(es) + childCap - 1) / childCap
	size := (len(es) + groups - 1) / groups

	bounds := make([]int, 0, groups-1)
	for k := size; k < len(es); k += size {
		bounds = append(bounds, k)
	}
	multiSelect(es, bounds, spreadAxis(es))

	n.children = make([]*node, 0, groups)
	for lo := 0; lo < len(es); lo += size {
		hi := min(lo+size, len(es))
		child := &node{}
		n.children = append(n.children, child)
		part := es[lo:hi]
		run := func() error {
			b.build(child, part, level-1, childCap)
			return nil
		}
		if b.g == nil || len(part) < parallelThreshold || !b.g.TryGo(run) {
			_ = run()
		}
	}
}

func computeBoxes(n *node) geom.BBox {
	if n.leaf() {
		n.box = n.entries[0].box
		for _, e := range n.entries[1:] {
			n.box = n.box.Union(e.box)
		}
		return n.box
	}
	n.box = computeBoxes(n.children[0])
	for _, c := range n.children[1:] {
		n.box = n.box.Union(computeBoxes(c))
	}
	return n.box
}

// Len returns the number of indexed polygons.
func (ix *Index) Len() int { return ix.size }

// Height is the number of levels; 0 for an empty index.
func (ix *Index) Height() int { return ix.height }

// Bounds is the union of all indexed boxes; ok is false when empty.
func (ix *Index) Bounds() (geom.BBox, bool) {
	if ix.root == nil {
		return geom.BBox{}, false
	}
	return ix.root.box, true
}

// Search calls fn for every polygon index whose box intersects box. It stops
// early when fn returns false. Visit order is unspecified.
func (ix *Index) Search(box geom.BBox, fn func(idx int) bool) error {
	if err := box.Validate(); err != nil {
		return err
	}
	if ix.root == nil || !geom.BoxesIntersect(ix.root.box, box) {
		return nil
	}
	search(ix.root, box, fn)
	return nil
}

func search(n *node, box geom.BBox, fn func(int) bool) bool {
	if n.leaf() {
		for _, e := range n.entries {
			if geom.BoxesIntersect(e.box, box) && !fn(e.idx) {
				return false
			}
		}
		return true
	}
	for _, c := range n.children {
		if !geom.BoxesIntersect(c.box, box) {
			continue
		}
		if !search(c, box, fn) {
			return false
		}
	}
	return true
}

// Query returns the sorted indices of polygons whose bounding box intersects
// box. It answers at bbox level only; exact geometry is the caller's concern.
func (ix *Index) Query(box geom.BBox) ([]int, error) {
	var out []int
	if err := ix.Search(box, func(idx int) bool {
		out = append(out, idx)
		return true
	}); err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}
