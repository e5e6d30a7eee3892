// Package dimension implements the per-dimension tile arithmetic and
// Domain aggregation: tile-id <-> coordinate mapping, range splitting
// and overlap, and the Hilbert coordinate mapping used for sparse
// cell ordering.
package dimension

import (
	"math"

	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/shared"
)

// Dimension is one axis of an array's domain: a name, scalar type,
// closed domain range, and optional tile extent.
type Dimension struct {
	Name       string
	Datatype   shared.Datatype
	CellValNum uint32
	Domain     rangeidx.Range // fixed-size range: 2*coordSize bytes
	TileExtent []byte         // coordSize bytes, nil if this dimension has no tiling
	lane       lane
}

// New validates and constructs a Dimension. domainLow/domainHigh and
// extent (may be nil) are each exactly dt.ByteSize() bytes.
func New(name string, dt shared.Datatype, domainLow, domainHigh, extent []byte) (*Dimension, error) {
	ln, err := laneOf(dt)
	if err != nil {
		return nil, err
	}
	coordSize := dt.ByteSize()
	if len(domainLow) != coordSize || len(domainHigh) != coordSize {
		return nil, errs.New(errs.UsageError, "dimension %s: domain bounds must be %d bytes", name, coordSize)
	}
	d := &Dimension{Name: name, Datatype: dt, CellValNum: 1, lane: ln}
	rng, err := rangeidx.NewFixed(domainLow, domainHigh, coordSize)
	if err != nil {
		return nil, err
	}
	d.Domain = rng
	if err := d.checkRange(rng); err != nil {
		return nil, err
	}
	if extent != nil {
		if len(extent) != coordSize {
			return nil, errs.New(errs.UsageError, "dimension %s: tile extent must be %d bytes", name, coordSize)
		}
		if err := d.checkExtent(extent); err != nil {
			return nil, err
		}
		d.TileExtent = append([]byte(nil), extent...)
	}
	return d, nil
}

func (d *Dimension) checkRange(r rangeidx.Range) error {
	lo, hi, err := r.StartEnd()
	if err != nil {
		return err
	}
	switch d.lane {
	case laneSigned:
		a, b := decodeSigned(d.Datatype, lo), decodeSigned(d.Datatype, hi)
		if a > b {
			return errs.New(errs.UsageError, "dimension %s: domain low %d > high %d", d.Name, a, b)
		}
	case laneUnsigned:
		a, b := decodeUnsigned(d.Datatype, lo), decodeUnsigned(d.Datatype, hi)
		if a > b {
			return errs.New(errs.UsageError, "dimension %s: domain low %d > high %d", d.Name, a, b)
		}
	case laneReal:
		a, b := decodeReal(d.Datatype, lo), decodeReal(d.Datatype, hi)
		if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
			return errs.New(errs.UsageError, "dimension %s: domain bound is NaN/Inf", d.Name)
		}
		if a > b {
			return errs.New(errs.UsageError, "dimension %s: domain low %g > high %g", d.Name, a, b)
		}
	}
	return nil
}

func (d *Dimension) checkExtent(extent []byte) error {
	switch d.lane {
	case laneSigned:
		e := decodeSigned(d.Datatype, extent)
		if e <= 0 {
			return errs.New(errs.UsageError, "dimension %s: tile extent must be positive", d.Name)
		}
	case laneUnsigned:
		e := decodeUnsigned(d.Datatype, extent)
		if e == 0 {
			return errs.New(errs.UsageError, "dimension %s: tile extent must be positive", d.Name)
		}
	case laneReal:
		e := decodeReal(d.Datatype, extent)
		if !(e > 0) {
			return errs.New(errs.UsageError, "dimension %s: tile extent must be positive", d.Name)
		}
	}
	return nil
}

func (d *Dimension) domainLow() []byte {
	lo, _, _ := d.Domain.StartEnd()
	return lo
}

func (d *Dimension) domainHigh() []byte {
	_, hi, _ := d.Domain.StartEnd()
	return hi
}

// TileIdx returns the zero-based tile index covering coordinate v.
func (d *Dimension) TileIdx(v []byte) (uint64, error) {
	if d.TileExtent == nil {
		return 0, errs.New(errs.UsageError, "dimension %s: tile_idx requires a tile extent", d.Name)
	}
	switch d.lane {
	case laneSigned:
		low, ext := decodeSigned(d.Datatype, d.domainLow()), decodeSigned(d.Datatype, d.TileExtent)
		val := decodeSigned(d.Datatype, v)
		return uint64((val - low) / ext), nil
	case laneUnsigned:
		low, ext := decodeUnsigned(d.Datatype, d.domainLow()), decodeUnsigned(d.Datatype, d.TileExtent)
		val := decodeUnsigned(d.Datatype, v)
		return (val - low) / ext, nil
	default:
		low, ext := decodeReal(d.Datatype, d.domainLow()), decodeReal(d.Datatype, d.TileExtent)
		val := decodeReal(d.Datatype, v)
		return uint64(math.Floor((val - low) / ext)), nil
	}
}

// RoundToTile snaps v down to the low coordinate of its tile.
func (d *Dimension) RoundToTile(v []byte) ([]byte, error) {
	idx, err := d.TileIdx(v)
	if err != nil {
		return nil, err
	}
	return d.TileCoordLow(idx)
}

// TileCoordLow returns the low coordinate of tile k.
func (d *Dimension) TileCoordLow(k uint64) ([]byte, error) {
	if d.TileExtent == nil {
		return nil, errs.New(errs.UsageError, "dimension %s: tile_coord_low requires a tile extent", d.Name)
	}
	switch d.lane {
	case laneSigned:
		low, ext := decodeSigned(d.Datatype, d.domainLow()), decodeSigned(d.Datatype, d.TileExtent)
		return encodeSigned(d.Datatype, low+int64(k)*ext), nil
	case laneUnsigned:
		low, ext := decodeUnsigned(d.Datatype, d.domainLow()), decodeUnsigned(d.Datatype, d.TileExtent)
		return encodeUnsigned(d.Datatype, low+k*ext), nil
	default:
		low, ext := decodeReal(d.Datatype, d.domainLow()), decodeReal(d.Datatype, d.TileExtent)
		return encodeReal(d.Datatype, low+float64(k)*ext), nil
	}
}

// TileCoordHigh returns the high coordinate of tile k: for integer
// lanes this is tile_coord_low(k+1)-1, saturating at the type's
// maximum instead of wrapping when that would overflow; for the real
// lane it is the representable value just below tile k+1's low
// coordinate (math.Nextafter toward -Inf).
func (d *Dimension) TileCoordHigh(k uint64) ([]byte, error) {
	if d.TileExtent == nil {
		return nil, errs.New(errs.UsageError, "dimension %s: tile_coord_high requires a tile extent", d.Name)
	}
	switch d.lane {
	case laneSigned:
		low, ext := decodeSigned(d.Datatype, d.domainLow()), decodeSigned(d.Datatype, d.TileExtent)
		_, maxV := signedBounds(d.Datatype)
		nextLow := low + int64(k+1)*ext
		high := nextLow - 1
		if high > maxV || nextLow < low {
			high = maxV
		}
		return encodeSigned(d.Datatype, high), nil
	case laneUnsigned:
		low, ext := decodeUnsigned(d.Datatype, d.domainLow()), decodeUnsigned(d.Datatype, d.TileExtent)
		_, maxV := unsignedBounds(d.Datatype)
		nextLow := low + (k+1)*ext
		if nextLow == 0 || nextLow-1 > maxV {
			return encodeUnsigned(d.Datatype, maxV), nil
		}
		return encodeUnsigned(d.Datatype, nextLow-1), nil
	default:
		low, ext := decodeReal(d.Datatype, d.domainLow()), decodeReal(d.Datatype, d.TileExtent)
		nextLow := low + float64(k+1)*ext
		return encodeReal(d.Datatype, math.Nextafter(nextLow, math.Inf(-1))), nil
	}
}

// CeilToTile returns the high coordinate of the k-th tile counting
// from the tile containing r's low bound, i.e. the smallest tile
// boundary that covers k full tiles starting at r.
func (d *Dimension) CeilToTile(r rangeidx.Range, k uint64) ([]byte, error) {
	lo, _, err := r.StartEnd()
	if err != nil {
		return nil, err
	}
	base, err := d.TileIdx(lo)
	if err != nil {
		return nil, err
	}
	if k == 0 {
		return nil, errs.New(errs.UsageError, "dimension %s: ceil_to_tile requires k >= 1", d.Name)
	}
	return d.TileCoordHigh(base + k - 1)
}

// ExpandToTile snaps r outward to the nearest enclosing tile boundaries.
func (d *Dimension) ExpandToTile(r rangeidx.Range) (rangeidx.Range, error) {
	lo, hi, err := r.StartEnd()
	if err != nil {
		return rangeidx.Range{}, err
	}
	loIdx, err := d.TileIdx(lo)
	if err != nil {
		return rangeidx.Range{}, err
	}
	hiIdx, err := d.TileIdx(hi)
	if err != nil {
		return rangeidx.Range{}, err
	}
	newLow, err := d.TileCoordLow(loIdx)
	if err != nil {
		return rangeidx.Range{}, err
	}
	newHigh, err := d.TileCoordHigh(hiIdx)
	if err != nil {
		return rangeidx.Range{}, err
	}
	return rangeidx.NewFixed(newLow, newHigh, d.Datatype.ByteSize())
}

// CoincidesWithTiles reports whether r's bounds already sit exactly
// on tile boundaries.
func (d *Dimension) CoincidesWithTiles(r rangeidx.Range) (bool, error) {
	expanded, err := d.ExpandToTile(r)
	if err != nil {
		return false, err
	}
	return r.Equal(expanded), nil
}

// Overlap reports whether a and b (both closed ranges over this
// dimension) intersect.
func (d *Dimension) Overlap(a, b rangeidx.Range) (bool, error) {
	aLo, aHi, err := a.StartEnd()
	if err != nil {
		return false, err
	}
	bLo, bHi, err := b.StartEnd()
	if err != nil {
		return false, err
	}
	return !d.less(aHi, bLo, false) && !d.less(bHi, aLo, false), nil
}

// Covered reports whether a lies entirely within b.
func (d *Dimension) Covered(a, b rangeidx.Range) (bool, error) {
	aLo, aHi, err := a.StartEnd()
	if err != nil {
		return false, err
	}
	bLo, bHi, err := b.StartEnd()
	if err != nil {
		return false, err
	}
	return !d.less(aLo, bLo, false) && !d.less(bHi, aHi, false), nil
}

// OverlapRatio returns the fraction of a's length covered by its
// intersection with b, in [0,1].
func (d *Dimension) OverlapRatio(a, b rangeidx.Range) (float64, error) {
	aLo, aHi, err := a.StartEnd()
	if err != nil {
		return 0, err
	}
	bLo, bHi, err := b.StartEnd()
	if err != nil {
		return 0, err
	}

	lo := aLo
	if d.less(lo, bLo, false) {
		lo = bLo
	}
	hi := aHi
	if d.less(bHi, hi, false) {
		hi = bHi
	}
	if d.less(hi, lo, false) {
		return 0, nil
	}
	isect := d.length(lo, hi)
	total := d.length(aLo, aHi)
	if total == 0 {
		return 0, nil
	}
	return isect / total, nil
}

// less reports whether x < y, optionally treating equal values as
// less (used by smaller_than's strict/inclusive variants).
func (d *Dimension) less(x, y []byte, orEqual bool) bool {
	switch d.lane {
	case laneSigned:
		a, b := decodeSigned(d.Datatype, x), decodeSigned(d.Datatype, y)
		if orEqual {
			return a <= b
		}
		return a < b
	case laneUnsigned:
		a, b := decodeUnsigned(d.Datatype, x), decodeUnsigned(d.Datatype, y)
		if orEqual {
			return a <= b
		}
		return a < b
	default:
		a, b := decodeReal(d.Datatype, x), decodeReal(d.Datatype, y)
		if orEqual {
			return a <= b
		}
		return a < b
	}
}

// length returns the number of values in [lo,hi], widened to float64,
// used for the dimensionless overlap-ratio computation. Integer
// lanes are discrete domains, so length counts inclusive endpoints
// (hi-lo+1); the real lane is a continuum, so length is the plain
// difference.
func (d *Dimension) length(lo, hi []byte) float64 {
	switch d.lane {
	case laneSigned:
		return float64(decodeSigned(d.Datatype, hi)-decodeSigned(d.Datatype, lo)) + 1
	case laneUnsigned:
		return float64(decodeUnsigned(d.Datatype, hi)-decodeUnsigned(d.Datatype, lo)) + 1
	default:
		return decodeReal(d.Datatype, hi) - decodeReal(d.Datatype, lo)
	}
}

// SmallerThan reports whether value is strictly less than r's low bound.
func (d *Dimension) SmallerThan(value []byte, r rangeidx.Range) (bool, error) {
	lo, _, err := r.StartEnd()
	if err != nil {
		return false, err
	}
	return d.less(value, lo, false), nil
}

// TileNum returns the number of tiles r spans.
func (d *Dimension) TileNum(r rangeidx.Range) (uint64, error) {
	lo, hi, err := r.StartEnd()
	if err != nil {
		return 0, err
	}
	loIdx, err := d.TileIdx(lo)
	if err != nil {
		return 0, err
	}
	hiIdx, err := d.TileIdx(hi)
	if err != nil {
		return 0, err
	}
	return hiIdx - loIdx + 1, nil
}

// SplitRange splits r at v into (left=[lo,v], right=(v,hi]). v must lie
// strictly inside r.
func (d *Dimension) SplitRange(r rangeidx.Range, v []byte) (left, right rangeidx.Range, err error) {
	lo, hi, err := r.StartEnd()
	if err != nil {
		return rangeidx.Range{}, rangeidx.Range{}, err
	}
	sz := d.Datatype.ByteSize()
	left, err = rangeidx.NewFixed(lo, v, sz)
	if err != nil {
		return rangeidx.Range{}, rangeidx.Range{}, err
	}
	nextV, err := d.next(v)
	if err != nil {
		return rangeidx.Range{}, rangeidx.Range{}, err
	}
	right, err = rangeidx.NewFixed(nextV, hi, sz)
	return left, right, err
}

// next returns the smallest representable value strictly greater than v.
func (d *Dimension) next(v []byte) ([]byte, error) {
	switch d.lane {
	case laneSigned:
		val := decodeSigned(d.Datatype, v)
		_, maxV := signedBounds(d.Datatype)
		if val >= maxV {
			return nil, errs.New(errs.UsageError, "dimension %s: no representable value above %d", d.Name, val)
		}
		return encodeSigned(d.Datatype, val+1), nil
	case laneUnsigned:
		val := decodeUnsigned(d.Datatype, v)
		_, maxV := unsignedBounds(d.Datatype)
		if val >= maxV {
			return nil, errs.New(errs.UsageError, "dimension %s: no representable value above %d", d.Name, val)
		}
		return encodeUnsigned(d.Datatype, val+1), nil
	default:
		val := decodeReal(d.Datatype, v)
		return encodeReal(d.Datatype, math.Nextafter(val, math.Inf(1))), nil
	}
}

// SplittingValue returns the midpoint of r and whether r is narrow
// enough that no further split is possible.
func (d *Dimension) SplittingValue(r rangeidx.Range) (value []byte, unsplittable bool, err error) {
	lo, hi, err := r.StartEnd()
	if err != nil {
		return nil, false, err
	}
	switch d.lane {
	case laneSigned:
		a, b := decodeSigned(d.Datatype, lo), decodeSigned(d.Datatype, hi)
		mid := a + (b-a)/2
		return encodeSigned(d.Datatype, mid), mid == a || mid == b, nil
	case laneUnsigned:
		a, b := decodeUnsigned(d.Datatype, lo), decodeUnsigned(d.Datatype, hi)
		mid := a + (b-a)/2
		return encodeUnsigned(d.Datatype, mid), mid == a || mid == b, nil
	default:
		a, b := decodeReal(d.Datatype, lo), decodeReal(d.Datatype, hi)
		mid := a + (b-a)/2
		return encodeReal(d.Datatype, mid), mid <= a || mid >= b, nil
	}
}
