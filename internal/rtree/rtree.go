// Package rtree implements the bulk-built MBR tree over per-tile
// minimum bounding rectangles that answers range-query overlap.
package rtree

import (
	"github.com/mattdurham/fragcore/internal/dimension"
	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/rangeidx"
)

// TileOverlap is the result of a range query against an RTree:
// contiguous runs of fully-covered tile ids, plus individually listed
// tiles with fractional coverage for tiles only partially inside the
// query range.
type TileOverlap struct {
	// TileRanges is a list of [lo,hi] inclusive, contiguous,
	// fully-covered tile id ranges.
	TileRanges [][2]uint64
	// Tiles is a list of (tile id, coverage fraction in (0,1]) for
	// tiles that are only partially covered.
	Tiles []TileCoverage
}

// TileCoverage pairs a tile id with its fractional coverage.
type TileCoverage struct {
	TileID   uint64
	Coverage float64
}

// node is one level's worth of bounding boxes. Leaves hold one MBR
// per tile in fragment write order; each internal level's entry i is
// the union of its children's MBRs.
type node struct {
	mbrs []rangeidx.NDRange
}

// RTree is a bulk-built, immutable-after-build tree of node levels,
// leaves last.
type RTree struct {
	fanout int
	domain *dimension.Domain
	levels []node // levels[0] is the root; levels[len-1] is the leaf level
	built  bool
}

// New returns an empty RTree with the given fanout (child count per
// internal node) and the Domain used to interpret per-dimension
// overlap/coverage.
func New(fanout int, domain *dimension.Domain) *RTree {
	if fanout < 2 {
		fanout = 16
	}
	return &RTree{fanout: fanout, domain: domain}
}

// SetLeafNum sizes the leaf level to n entries. Must be called before
// any SetLeaf call.
func (t *RTree) SetLeafNum(n uint64) {
	t.levels = []node{{mbrs: make([]rangeidx.NDRange, n)}}
	t.built = false
}

// SetLeaf fills leaf i's MBR. May be called out of order; every leaf
// must be set before BuildTree.
func (t *RTree) SetLeaf(i uint64, mbr rangeidx.NDRange) error {
	if len(t.levels) == 0 {
		return errs.New(errs.UsageError, "rtree: SetLeafNum must be called before SetLeaf")
	}
	leaves := t.levels[0].mbrs
	if i >= uint64(len(leaves)) {
		return errs.New(errs.UsageError, "rtree: leaf index %d out of range [0,%d)", i, len(leaves))
	}
	leaves[i] = mbr
	return nil
}

// LeafNum returns the number of leaves (== tile_num of the fragment).
func (t *RTree) LeafNum() uint64 {
	if len(t.levels) == 0 {
		return 0
	}
	return uint64(len(t.levels[len(t.levels)-1].mbrs))
}

// Leaves returns the leaf level's MBRs in tile write order. The leaf
// level is always levels[len-1], whether or not BuildTree has run
// yet, so this is safe to call right after SetLeaf as well as after a
// full build — used by serialization to persist exactly the leaves
// and by deserialization to repopulate them before BuildTree.
func (t *RTree) Leaves() []rangeidx.NDRange {
	if len(t.levels) == 0 {
		return nil
	}
	return t.levels[len(t.levels)-1].mbrs
}

// BuildTree constructs internal levels bottom-up from the leaf level.
// Idempotent: calling it again with the same leaves rebuilds the same tree.
func (t *RTree) BuildTree() error {
	if len(t.levels) == 0 {
		return errs.New(errs.UsageError, "rtree: no leaves set")
	}
	leaves := t.levels[len(t.levels)-1]
	levels := []node{leaves}
	cur := leaves
	for len(cur.mbrs) > 1 {
		parent, err := t.buildParentLevel(cur)
		if err != nil {
			return err
		}
		levels = append(levels, parent)
		cur = parent
	}
	// levels is leaf-first; store root-first per the documented layout.
	t.levels = make([]node, len(levels))
	for i, lv := range levels {
		t.levels[len(levels)-1-i] = lv
	}
	t.built = true
	return nil
}

func (t *RTree) buildParentLevel(child node) (node, error) {
	n := len(child.mbrs)
	parentN := (n + t.fanout - 1) / t.fanout
	parent := node{mbrs: make([]rangeidx.NDRange, parentN)}
	for p := 0; p < parentN; p++ {
		start := p * t.fanout
		end := start + t.fanout
		if end > n {
			end = n
		}
		union, err := t.unionMBRs(child.mbrs[start:end])
		if err != nil {
			return node{}, err
		}
		parent.mbrs[p] = union
	}
	return parent, nil
}

func (t *RTree) unionMBRs(mbrs []rangeidx.NDRange) (rangeidx.NDRange, error) {
	return UnionNDRanges(t.domain, mbrs)
}

// UnionNDRanges returns the smallest NDRange covering every range in
// nds, dimension by dimension, per domain's per-dimension comparators.
// Exported so callers outside this package (fraginfo's
// expand_anterior_ndrange) can fold multiple fragments' non-empty
// domains without duplicating the per-datatype min/max logic.
func UnionNDRanges(domain *dimension.Domain, nds []rangeidx.NDRange) (rangeidx.NDRange, error) {
	if len(nds) == 0 {
		return nil, errs.New(errs.UsageError, "rtree: cannot union zero MBRs")
	}
	ndim := domain.NDim()
	out := make(rangeidx.NDRange, ndim)
	for d := 0; d < ndim; d++ {
		lo := nds[0][d]
		hi := nds[0][d]
		for _, m := range nds[1:] {
			var err error
			lo, err = minRange(domain.Dimensions[d], lo, m[d])
			if err != nil {
				return nil, err
			}
			hi, err = maxRange(domain.Dimensions[d], hi, m[d])
			if err != nil {
				return nil, err
			}
		}
		out[d] = unionRange(domain.Dimensions[d], lo, hi)
	}
	return out, nil
}

// minRange/maxRange/unionRange are small NDRange-union helpers kept
// local to this file since they only make sense in terms of a single
// dimension's byte-level comparisons.
func minRange(d *dimension.Dimension, a, b rangeidx.Range) (rangeidx.Range, error) {
	aLo, _, err := a.StartEnd()
	if err != nil {
		return rangeidx.Range{}, err
	}
	bLo, _, err := b.StartEnd()
	if err != nil {
		return rangeidx.Range{}, err
	}
	smaller, err := d.SmallerThan(aLo, b)
	if err != nil {
		return rangeidx.Range{}, err
	}
	if smaller || string(aLo) == string(bLo) {
		return a, nil
	}
	return b, nil
}

func maxRange(d *dimension.Dimension, a, b rangeidx.Range) (rangeidx.Range, error) {
	_, aHi, err := a.StartEnd()
	if err != nil {
		return rangeidx.Range{}, err
	}
	_, _, err = b.StartEnd()
	if err != nil {
		return rangeidx.Range{}, err
	}
	smaller, err := d.SmallerThan(aHi, b)
	if err != nil {
		return rangeidx.Range{}, err
	}
	if smaller {
		return b, nil
	}
	return a, nil
}

func unionRange(d *dimension.Dimension, lo, hi rangeidx.Range) rangeidx.Range {
	loBytes, _, _ := lo.StartEnd()
	_, hiBytes, _ := hi.StartEnd()
	r, _ := rangeidx.NewFixed(loBytes, hiBytes, d.Datatype.ByteSize())
	return r
}

// Root returns the tree's root-level MBR (the union of all leaves).
func (t *RTree) Root() (rangeidx.NDRange, error) {
	if !t.built || len(t.levels) == 0 {
		return nil, errs.New(errs.UsageError, "rtree: not built")
	}
	return t.levels[0].mbrs[0], nil
}

// FreeMemory drops every internal (non-leaf) level, returning the
// number of MBR slots released so the caller can report it to the
// memory tracker.
func (t *RTree) FreeMemory() int {
	if len(t.levels) <= 1 {
		return 0
	}
	freed := 0
	leaves := t.levels[len(t.levels)-1]
	for _, lv := range t.levels[:len(t.levels)-1] {
		freed += len(lv.mbrs)
	}
	t.levels = []node{leaves}
	t.built = false
	return freed
}

// GetTileOverlap returns the TileOverlap of the query ndrange against
// this tree's leaves. isDefault[d]==true means dimension d's bound is
// an unconstrained default and is skipped during the overlap test.
func (t *RTree) GetTileOverlap(query rangeidx.NDRange, isDefault []bool) (TileOverlap, error) {
	if len(t.levels) == 0 {
		return TileOverlap{}, nil
	}
	var out TileOverlap
	leafLevel := len(t.levels) - 1
	err := t.walk(0, 0, len(t.levels[0].mbrs), query, isDefault, &out, leafLevel)
	if err != nil {
		return TileOverlap{}, err
	}
	out.TileRanges = collapseRuns(out.TileRanges)
	return out, nil
}

// walk performs the depth-first traversal: a node whose MBR is fully
// covered by query collapses into a
// (lo,hi) tile-id range without visiting its children; a node
// disjoint from query contributes nothing; otherwise the node is
// descended (or, at the leaf level, reported as a partial tile).
func (t *RTree) walk(level int, start, end int, query rangeidx.NDRange, isDefault []bool, out *TileOverlap, leafLevel int) error {
	// The single root entry spans the whole leaf range at level 0;
	// for simplicity (and because internal levels are small) we
	// re-derive each internal node's child span from the fanout
	// instead of storing it, which keeps RTree's per-node footprint
	// to just the MBR slice.
	if level == leafLevel {
		for i := start; i < end; i++ {
			mbr := t.levels[level].mbrs[i]
			covered, err := t.covered(mbr, query, isDefault)
			if err != nil {
				return err
			}
			if !covered {
				overlaps, err := t.overlaps(mbr, query, isDefault)
				if err != nil {
					return err
				}
				if !overlaps {
					continue
				}
				cov, err := t.coverage(mbr, query, isDefault)
				if err != nil {
					return err
				}
				out.Tiles = append(out.Tiles, TileCoverage{TileID: uint64(i), Coverage: cov})
				continue
			}
			out.TileRanges = append(out.TileRanges, [2]uint64{uint64(i), uint64(i)})
		}
		return nil
	}

	mbr := t.unionChildren(level, start, end)
	overlaps, err := t.overlaps(mbr, query, isDefault)
	if err != nil || !overlaps {
		return err
	}
	covered, err := t.covered(mbr, query, isDefault)
	if err != nil {
		return err
	}
	childStart, childEnd := start*t.fanout, end*t.fanout
	if leafChildCount := len(t.levels[level+1].mbrs); childEnd > leafChildCount {
		childEnd = leafChildCount
	}
	if covered {
		// Scale the child span down to leaf (tile) ids for deeper trees.
		lo, hi := childStart, childEnd
		for l := level + 1; l < leafLevel; l++ {
			lo, hi = lo*t.fanout, hi*t.fanout
		}
		if n := len(t.levels[leafLevel].mbrs); hi > n {
			hi = n
		}
		out.TileRanges = append(out.TileRanges, [2]uint64{uint64(lo), uint64(hi - 1)})
		return nil
	}
	// Descend one fanout-sized group at a time.
	for c := childStart; c < childEnd; c += t.fanout {
		ce := c + t.fanout
		if ce > childEnd {
			ce = childEnd
		}
		if err := t.walk(level+1, c, ce, query, isDefault, out, leafLevel); err != nil {
			return err
		}
	}
	return nil
}

func (t *RTree) unionChildren(level, start, end int) rangeidx.NDRange {
	if level == 0 {
		return t.levels[0].mbrs[0]
	}
	u, _ := t.unionMBRs(t.levels[level].mbrs[start:end])
	return u
}

func (t *RTree) overlaps(mbr, query rangeidx.NDRange, isDefault []bool) (bool, error) {
	for d, dim := range t.domain.Dimensions {
		if isDefault != nil && d < len(isDefault) && isDefault[d] {
			continue
		}
		ok, err := dim.Overlap(mbr[d], query[d])
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func (t *RTree) covered(mbr, query rangeidx.NDRange, isDefault []bool) (bool, error) {
	for d, dim := range t.domain.Dimensions {
		if isDefault != nil && d < len(isDefault) && isDefault[d] {
			continue
		}
		ok, err := dim.Covered(mbr[d], query[d])
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// coverage returns the product, over non-default dimensions, of the
// fraction of mbr covered by query — the fractional-coverage metric
// used to rank partially-overlapping leaves.
func (t *RTree) coverage(mbr, query rangeidx.NDRange, isDefault []bool) (float64, error) {
	cov := 1.0
	for d, dim := range t.domain.Dimensions {
		if isDefault != nil && d < len(isDefault) && isDefault[d] {
			continue
		}
		r, err := dim.OverlapRatio(mbr[d], query[d])
		if err != nil {
			return 0, err
		}
		cov *= r
	}
	return cov, nil
}

// collapseRuns merges adjacent/overlapping (lo,hi) tile-id ranges
// produced by independent subtree collapses during the walk into the
// minimal contiguous set TileOverlap.tile_ranges_ is expected to hold.
func collapseRuns(runs [][2]uint64) [][2]uint64 {
	if len(runs) < 2 {
		return runs
	}
	// Runs are produced in ascending tile-id order by the DFS, so a
	// single linear merge pass suffices.
	out := [][2]uint64{runs[0]}
	for _, r := range runs[1:] {
		last := &out[len(out)-1]
		if r[0] <= last[1]+1 {
			if r[1] > last[1] {
				last[1] = r[1]
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// ComputeTileBitmap sets out[i]=1 for every leaf i whose bound on
// dimension dim intersects r, reusing the caller-provided out slice
// (len(out) must equal LeafNum()) to avoid a per-query allocation.
func (t *RTree) ComputeTileBitmap(r rangeidx.Range, dim int, out []byte) error {
	leaves := t.levels[len(t.levels)-1].mbrs
	if len(out) != len(leaves) {
		return errs.New(errs.UsageError, "rtree: bitmap length %d != leaf count %d", len(out), len(leaves))
	}
	if dim < 0 || dim >= t.domain.NDim() {
		return errs.New(errs.UsageError, "rtree: dimension index %d out of range", dim)
	}
	d := t.domain.Dimensions[dim]
	for i, mbr := range leaves {
		ok, err := d.Overlap(mbr[dim], r)
		if err != nil {
			return err
		}
		if ok {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	return nil
}
