package dimension

import (
	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/rangeidx"
)

// Domain is the ordered list of Dimensions that defines an array's
// coordinate space. Dimension order is significant: it is both the
// NDRange component order and, for dense arrays, the row-/column-major
// tile linearization order.
type Domain struct {
	Dimensions []*Dimension
	ColMajor   bool // false = row-major (default), true = column-major
}

// NewDomain builds a Domain over dims in schema order.
func NewDomain(colMajor bool, dims ...*Dimension) *Domain {
	return &Domain{Dimensions: dims, ColMajor: colMajor}
}

// NDim returns the number of dimensions.
func (dom *Domain) NDim() int { return len(dom.Dimensions) }

// CellNumPerTile returns the product of every dimension's tile
// extent-derived cell count; only meaningful for dense domains where
// every dimension has a tile extent.
func (dom *Domain) CellNumPerTile() (uint64, error) {
	total := uint64(1)
	for _, d := range dom.Dimensions {
		if d.TileExtent == nil {
			return 0, errs.New(errs.UsageError, "domain: dimension %s has no tile extent", d.Name)
		}
		switch d.lane {
		case laneSigned:
			total *= uint64(decodeSigned(d.Datatype, d.TileExtent))
		case laneUnsigned:
			total *= decodeUnsigned(d.Datatype, d.TileExtent)
		default:
			total *= uint64(decodeReal(d.Datatype, d.TileExtent))
		}
	}
	return total, nil
}

// TileCountsPerDim returns, for a dense domain, ceil(domain_d/extent_d)
// for every dimension d.
func (dom *Domain) TileCountsPerDim() ([]uint64, error) {
	counts := make([]uint64, len(dom.Dimensions))
	for i, d := range dom.Dimensions {
		n, err := d.TileNum(d.Domain)
		if err != nil {
			return nil, err
		}
		counts[i] = n
	}
	return counts, nil
}

// TileNum returns the total number of dense tiles in the domain:
// the product of TileCountsPerDim.
func (dom *Domain) TileNum() (uint64, error) {
	counts, err := dom.TileCountsPerDim()
	if err != nil {
		return 0, err
	}
	total := uint64(1)
	for _, c := range counts {
		total *= c
	}
	return total, nil
}

// GetTilePos linearizes a per-dimension tile coordinate vector into a
// single dense tile position, honoring ColMajor.
func (dom *Domain) GetTilePos(tileCoords []uint64) (uint64, error) {
	counts, err := dom.TileCountsPerDim()
	if err != nil {
		return 0, err
	}
	if len(tileCoords) != len(counts) {
		return 0, errs.New(errs.UsageError, "domain: tile coords length %d != dim count %d", len(tileCoords), len(counts))
	}
	var pos uint64
	if dom.ColMajor {
		stride := uint64(1)
		for i := 0; i < len(counts); i++ {
			pos += tileCoords[i] * stride
			stride *= counts[i]
		}
	} else {
		stride := uint64(1)
		for i := len(counts) - 1; i >= 0; i-- {
			pos += tileCoords[i] * stride
			stride *= counts[i]
		}
	}
	return pos, nil
}

// GetNextTileCoords advances a tile coordinate vector to the next one
// in linearization order, in place. Returns false if coords was
// already the last tile.
func (dom *Domain) GetNextTileCoords(coords []uint64) (bool, error) {
	counts, err := dom.TileCountsPerDim()
	if err != nil {
		return false, err
	}
	if dom.ColMajor {
		for i := 0; i < len(coords); i++ {
			coords[i]++
			if coords[i] < counts[i] {
				return true, nil
			}
			coords[i] = 0
		}
	} else {
		for i := len(coords) - 1; i >= 0; i-- {
			coords[i]++
			if coords[i] < counts[i] {
				return true, nil
			}
			coords[i] = 0
		}
	}
	return false, nil
}

// ExpandToTiles snaps every dimension's Range in nd outward to tile
// boundaries.
func (dom *Domain) ExpandToTiles(nd rangeidx.NDRange) (rangeidx.NDRange, error) {
	if len(nd) != len(dom.Dimensions) {
		return nil, errs.New(errs.UsageError, "domain: ndrange has %d dims, domain has %d", len(nd), len(dom.Dimensions))
	}
	out := make(rangeidx.NDRange, len(nd))
	for i, r := range nd {
		expanded, err := dom.Dimensions[i].ExpandToTile(r)
		if err != nil {
			return nil, err
		}
		out[i] = expanded
	}
	return out, nil
}

// CropNDRange intersects nd with the domain's own bounds per dimension.
func (dom *Domain) CropNDRange(nd rangeidx.NDRange) (rangeidx.NDRange, error) {
	if len(nd) != len(dom.Dimensions) {
		return nil, errs.New(errs.UsageError, "domain: ndrange has %d dims, domain has %d", len(nd), len(dom.Dimensions))
	}
	out := make(rangeidx.NDRange, len(nd))
	for i, r := range nd {
		d := dom.Dimensions[i]
		lo, hi, err := r.StartEnd()
		if err != nil {
			return nil, err
		}
		domLo, domHi, err := d.Domain.StartEnd()
		if err != nil {
			return nil, err
		}
		if d.less(lo, domLo, false) {
			lo = domLo
		}
		if d.less(domHi, hi, false) {
			hi = domHi
		}
		cropped, err := rangeidx.NewFixed(lo, hi, d.Datatype.ByteSize())
		if err != nil {
			return nil, err
		}
		out[i] = cropped
	}
	return out, nil
}
