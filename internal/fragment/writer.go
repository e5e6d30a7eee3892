package fragment

import (
	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/rtree"
	"github.com/mattdurham/fragcore/internal/tilestats"
)

// BuildRTree constructs the fragment's R-tree from its per-tile
// minimum bounding rectangles, leaves in tile-write order: sparse
// fragments need it for GetTileOverlap pruning, and dense fragments
// build one too so the on-disk section format stays uniform across
// both.
func (m *Metadata) BuildRTree(leaves []rangeidx.NDRange) error {
	t := rtree.New(rtreeFanout, m.Schema.Domain)
	t.SetLeafNum(uint64(len(leaves)))
	for i, mbr := range leaves {
		if err := t.SetLeaf(uint64(i), mbr); err != nil {
			return err
		}
	}
	if len(leaves) > 0 {
		if err := t.BuildTree(); err != nil {
			return err
		}
	}
	m.RTree = t
	m.loadedRTree = true
	return nil
}

// SetTileOffset records tile tid's persisted byte size for field name,
// extending file_sizes[i] by size. tid is relative to tileIndexBase.
func (m *Metadata) SetTileOffset(name string, tid uint64, size uint64) error {
	i, err := m.fieldIndex(name)
	if err != nil {
		return err
	}
	return m.appendOffset(&m.tileOffsets[i], &m.fileSizes[i], tid, size)
}

// SetTileVarOffset is the var-length analogue of SetTileOffset,
// extending file_var_sizes[i].
func (m *Metadata) SetTileVarOffset(name string, tid uint64, size uint64) error {
	i, err := m.fieldIndex(name)
	if err != nil {
		return err
	}
	return m.appendOffset(&m.tileVarOffsets[i], &m.fileVarSizes[i], tid, size)
}

// SetTileVarSize records field name's logical (unfiltered) var-payload
// size for tile tid, used by tile_var_size.
func (m *Metadata) SetTileVarSize(name string, tid uint64, size uint64) error {
	i, err := m.fieldIndex(name)
	if err != nil {
		return err
	}
	return m.appendAt(&m.tileVarSizes[i], tid, size)
}

// SetTileValidityOffset is the validity-bitmap analogue of
// SetTileOffset, extending file_validity_sizes[i].
func (m *Metadata) SetTileValidityOffset(name string, tid uint64, size uint64) error {
	i, err := m.fieldIndex(name)
	if err != nil {
		return err
	}
	return m.appendOffset(&m.tileValidityOffsets[i], &m.fileValiditySizes[i], tid, size)
}

// appendOffset is the shared streaming-append primitive behind
// SetTile{,Var,Validity}Offset: tile tid's offset is the accumulator's
// value *before* this tile's bytes are added, and tid must equal the
// slice's current length (tiles are appended strictly in order).
func (m *Metadata) appendOffset(offsets *[]uint64, fileSize *uint64, tid uint64, size uint64) error {
	if tid != uint64(len(*offsets)) {
		return errs.New(errs.UsageError, "fragment: tile offset %d out of sequence (expected %d)", tid, len(*offsets))
	}
	*offsets = append(*offsets, *fileSize)
	*fileSize += size
	return nil
}

func (m *Metadata) appendAt(slice *[]uint64, tid uint64, v uint64) error {
	if tid != uint64(len(*slice)) {
		return errs.New(errs.UsageError, "fragment: index %d out of sequence (expected %d)", tid, len(*slice))
	}
	*slice = append(*slice, v)
	return nil
}

// SetTileMin records field name's tile tid fixed-size minimum.
func (m *Metadata) SetTileMin(name string, tid uint64, value []byte) error {
	i, err := m.fieldIndex(name)
	if err != nil {
		return err
	}
	return m.appendFixedStat(&m.fixedStats[i].Min, tid, value)
}

// SetTileMax records field name's tile tid fixed-size maximum.
func (m *Metadata) SetTileMax(name string, tid uint64, value []byte) error {
	i, err := m.fieldIndex(name)
	if err != nil {
		return err
	}
	return m.appendFixedStat(&m.fixedStats[i].Max, tid, value)
}

func (m *Metadata) appendFixedStat(slice *[][]byte, tid uint64, value []byte) error {
	if tid != uint64(len(*slice)) {
		return errs.New(errs.UsageError, "fragment: stat index %d out of sequence (expected %d)", tid, len(*slice))
	}
	*slice = append(*slice, append([]byte(nil), value...))
	return nil
}

// SetTileMinVar/SetTileMaxVar append a var-length min/max value for
// field name's tile tid. In memory these are kept as one byte slice
// per tile; the size->offset conversion happens only when the section
// is serialized (see sections.go's encodeVarMinMax), but FlipMinMaxVarOffsets still gates
// it so it can only be prepared once.
func (m *Metadata) SetTileMinVar(name string, tid uint64, value []byte) error {
	i, err := m.fieldIndex(name)
	if err != nil {
		return err
	}
	if m.minVarFlipped[i] {
		return errs.New(errs.UsageError, "fragment: %s min-var offsets already flipped", name)
	}
	if tid != uint64(len(m.varStats[i].Min)) {
		return errs.New(errs.UsageError, "fragment: min-var index %d out of sequence (expected %d)", tid, len(m.varStats[i].Min))
	}
	m.varStats[i].Min = append(m.varStats[i].Min, append([]byte(nil), value...))
	return nil
}

func (m *Metadata) SetTileMaxVar(name string, tid uint64, value []byte) error {
	i, err := m.fieldIndex(name)
	if err != nil {
		return err
	}
	if m.maxVarFlipped[i] {
		return errs.New(errs.UsageError, "fragment: %s max-var offsets already flipped", name)
	}
	if tid != uint64(len(m.varStats[i].Max)) {
		return errs.New(errs.UsageError, "fragment: max-var index %d out of sequence (expected %d)", tid, len(m.varStats[i].Max))
	}
	m.varStats[i].Max = append(m.varStats[i].Max, append([]byte(nil), value...))
	return nil
}

// FlipMinMaxVarOffsets latches field name's min/max-var arrays as
// complete, one-directionally: required exactly once before Store.
// A second call is a usage error.
func (m *Metadata) FlipMinMaxVarOffsets(name string) error {
	i, err := m.fieldIndex(name)
	if err != nil {
		return err
	}
	if m.minVarFlipped[i] || m.maxVarFlipped[i] {
		return errs.New(errs.UsageError, "fragment: %s min/max-var offsets already flipped", name)
	}
	m.minVarFlipped[i] = true
	m.maxVarFlipped[i] = true
	return nil
}

// SetTileSum records field name's tile tid sum, as its raw little-endian
// 8-byte encoding (reinterpreted per Datatype by readers).
func (m *Metadata) SetTileSum(name string, tid uint64, sum [8]byte) error {
	i, err := m.fieldIndex(name)
	if err != nil {
		return err
	}
	if tid != uint64(len(m.fixedStats[i].Sum)) {
		return errs.New(errs.UsageError, "fragment: sum index %d out of sequence (expected %d)", tid, len(m.fixedStats[i].Sum))
	}
	m.fixedStats[i].Sum = append(m.fixedStats[i].Sum, sum)
	return nil
}

// SetTileNullCount records field name's tile tid null count.
func (m *Metadata) SetTileNullCount(name string, tid uint64, n uint64) error {
	i, err := m.fieldIndex(name)
	if err != nil {
		return err
	}
	var target *[]uint64
	if m.fields[i].isVar() {
		target = &m.varStats[i].NullCount
	} else {
		target = &m.fixedStats[i].NullCount
	}
	return m.appendAt(target, tid, n)
}

// AddTileStats folds a finished Generator's result for field name's
// tile tid straight into the per-tile arrays, the common case for a
// non-var fixed field (var-length callers use SetTileMinVar/MaxVar
// plus FlipMinMaxVarOffsets instead). Min/Max are recorded densely —
// zero-padded for an all-null tile (res.HasValues false) — so every
// per-tile array stays parallel by tile index; ComputeFragmentRollup
// tells an all-null tile apart by comparing null_count to the tile's
// cell count, not by a gap in these arrays.
func (m *Metadata) AddTileStats(name string, tid uint64, res tilestats.Fixed) error {
	width := m.statWidth(name)
	if err := m.SetTileMin(name, tid, padStat(res.Min, width)); err != nil {
		return err
	}
	if err := m.SetTileMax(name, tid, padStat(res.Max, width)); err != nil {
		return err
	}
	if err := m.SetTileSum(name, tid, res.Sum); err != nil {
		return err
	}
	return m.SetTileNullCount(name, tid, res.NullCount)
}

func (m *Metadata) statWidth(name string) int {
	i, _ := m.fieldIndex(name)
	return m.fields[i].Datatype.ByteSize()
}

// padStat pads a nil/short stat value out to width bytes so every
// tile's Min/Max entry is uniformly sized even for all-null tiles.
func padStat(v []byte, width int) []byte {
	if len(v) == width {
		return v
	}
	out := make([]byte, width)
	copy(out, v)
	return out
}
