package fragment

import (
	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/rtree"
)

// TileCoverage pairs a dense tile's linearized position with the
// fraction of it the query subarray covers.
type TileCoverage struct {
	TileID   uint64
	Coverage float64
}

// ComputeOverlappingTileIDs walks the tile-coordinate rectangle that
// subarray ∩ domain_ spans and returns every covered tile's linearized
// position, dense fragments only.
func (m *Metadata) ComputeOverlappingTileIDs(subarray rangeidx.NDRange) ([]uint64, error) {
	cov, err := m.computeOverlappingTiles(subarray)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(cov))
	for i, c := range cov {
		ids[i] = c.TileID
	}
	return ids, nil
}

// ComputeOverlappingTileIDsCov is ComputeOverlappingTileIDs plus each
// tile's fractional coverage by subarray.
func (m *Metadata) ComputeOverlappingTileIDsCov(subarray rangeidx.NDRange) ([]TileCoverage, error) {
	return m.computeOverlappingTiles(subarray)
}

func (m *Metadata) computeOverlappingTiles(subarray rangeidx.NDRange) ([]TileCoverage, error) {
	if !m.Dense {
		return nil, errs.New(errs.UsageError, "fragment: compute_overlapping_tile_ids requires a dense fragment")
	}
	dom := m.Schema.Domain
	cropped, err := dom.CropNDRange(subarray)
	if err != nil {
		return nil, err
	}

	loIdx := make([]uint64, dom.NDim())
	hiIdx := make([]uint64, dom.NDim())
	for i, d := range dom.Dimensions {
		lo, hi, err := cropped[i].StartEnd()
		if err != nil {
			return nil, err
		}
		if loIdx[i], err = d.TileIdx(lo); err != nil {
			return nil, err
		}
		if hiIdx[i], err = d.TileIdx(hi); err != nil {
			return nil, err
		}
	}

	var out []TileCoverage
	coords := append([]uint64(nil), loIdx...)
	for {
		pos, err := dom.GetTilePos(coords)
		if err != nil {
			return nil, err
		}
		coverage := 1.0
		for i, d := range dom.Dimensions {
			tileLow, err := d.TileCoordLow(coords[i])
			if err != nil {
				return nil, err
			}
			tileHigh, err := d.TileCoordHigh(coords[i])
			if err != nil {
				return nil, err
			}
			tileRange, err := rangeidx.NewFixed(tileLow, tileHigh, d.Datatype.ByteSize())
			if err != nil {
				return nil, err
			}
			ratio, err := d.OverlapRatio(tileRange, cropped[i])
			if err != nil {
				return nil, err
			}
			coverage *= ratio
		}
		out = append(out, TileCoverage{TileID: pos, Coverage: coverage})

		if !advanceWithinBounds(coords, loIdx, hiIdx, dom.ColMajor) {
			break
		}
	}
	return out, nil
}

// advanceWithinBounds increments coords to the next combination inside
// [lo,hi] (inclusive per dimension), honoring colMajor order. Returns
// false once every combination has been visited.
func advanceWithinBounds(coords, lo, hi []uint64, colMajor bool) bool {
	n := len(coords)
	if colMajor {
		for i := 0; i < n; i++ {
			coords[i]++
			if coords[i] <= hi[i] {
				return true
			}
			coords[i] = lo[i]
		}
	} else {
		for i := n - 1; i >= 0; i-- {
			coords[i]++
			if coords[i] <= hi[i] {
				return true
			}
			coords[i] = lo[i]
		}
	}
	return false
}

// GetTileOverlap delegates to the R-tree for sparse fragments.
// isDefault[d]==true skips dimension d's overlap test. The R-tree
// section must already be loaded.
func (m *Metadata) GetTileOverlap(query rangeidx.NDRange, isDefault []bool) (rtree.TileOverlap, error) {
	if m.Dense {
		return rtree.TileOverlap{}, errs.New(errs.UsageError, "fragment: get_tile_overlap requires a sparse fragment")
	}
	if err := m.requireLoaded(m.loadedRTree, "rtree"); err != nil {
		return rtree.TileOverlap{}, err
	}
	return m.RTree.GetTileOverlap(query, isDefault)
}

// BufferSize is a candidate read's worst-case required buffer sizes
// for one field.
type BufferSize struct {
	Fixed uint64 // bytes for the fixed/offsets buffer
	Var   uint64 // bytes for the var-length value buffer, 0 for fixed fields
}

// AddMaxBufferSizes bounds the output buffers a read over tileIDs
// would need, per field in names: cell_num(tid)*cell_size for fixed
// fields (plus cell_num(tid)*offset_size and tile_var_size for var
// fields).
func (m *Metadata) AddMaxBufferSizes(tileIDs []uint64, names []string) (map[string]BufferSize, error) {
	const offsetSize = 8
	out := make(map[string]BufferSize, len(names))
	for _, name := range names {
		i, err := m.fieldIndex(name)
		if err != nil {
			return nil, err
		}
		f := m.fields[i]
		var sz BufferSize
		for _, tid := range tileIDs {
			cells, err := m.cellNum(int(tid))
			if err != nil {
				return nil, err
			}
			if f.isVar() {
				sz.Fixed += (cells + 1) * offsetSize
				varSize, err := m.TileVarSize(name, int(tid))
				if err != nil {
					return nil, err
				}
				sz.Var += varSize
			} else {
				sz.Fixed += cells * uint64(f.Datatype.ByteSize()) * uint64(f.CellValNum)
			}
		}
		out[name] = sz
	}
	return out, nil
}
