package fragment

import (
	"github.com/mattdurham/fragcore/internal/errs"
)

// TileMetadata is the aggregation adapter get_tile_metadata returns:
// everything a query-plan pruning pass needs about one field's tile
// without touching the tile's own data buffer.
type TileMetadata struct {
	Count     uint64
	NullCount uint64
	Min       []byte
	Max       []byte
	HasSum    bool
	Sum       [8]byte
}

func (m *Metadata) requireLoaded(ok bool, what string) error {
	if !ok {
		return errs.New(errs.UsageError, "fragment: %s not loaded", what)
	}
	return nil
}

// FileOffset returns tile_offsets[field][tid].
func (m *Metadata) FileOffset(name string, tid int) (uint64, error) {
	i, err := m.fieldIndex(name)
	if err != nil {
		return 0, err
	}
	if err := m.requireLoaded(m.loadedTileOffsets[i], "tile_offsets"); err != nil {
		return 0, err
	}
	if tid < 0 || tid >= len(m.tileOffsets[i]) {
		return 0, errs.New(errs.UsageError, "fragment: tile index %d out of range for %q", tid, name)
	}
	return m.tileOffsets[i][tid], nil
}

// FileVarOffset returns tile_var_offsets[field][tid].
func (m *Metadata) FileVarOffset(name string, tid int) (uint64, error) {
	i, err := m.fieldIndex(name)
	if err != nil {
		return 0, err
	}
	if err := m.requireLoaded(m.loadedTileVar[i], "tile_var_offsets"); err != nil {
		return 0, err
	}
	if tid < 0 || tid >= len(m.tileVarOffsets[i]) {
		return 0, errs.New(errs.UsageError, "fragment: tile index %d out of range for %q", tid, name)
	}
	return m.tileVarOffsets[i][tid], nil
}

// FileValidityOffset returns tile_validity_offsets[field][tid].
func (m *Metadata) FileValidityOffset(name string, tid int) (uint64, error) {
	i, err := m.fieldIndex(name)
	if err != nil {
		return 0, err
	}
	if err := m.requireLoaded(m.loadedValidity, "tile_validity_offsets"); err != nil {
		return 0, err
	}
	if tid < 0 || tid >= len(m.tileValidityOffsets[i]) {
		return 0, errs.New(errs.UsageError, "fragment: tile index %d out of range for %q", tid, name)
	}
	return m.tileValidityOffsets[i][tid], nil
}

// PersistedTileSize returns the on-disk byte span of tile tid: the gap
// to the next tile's offset, or to file_sizes[i] for the last tile.
func (m *Metadata) PersistedTileSize(name string, tid int) (uint64, error) {
	i, err := m.fieldIndex(name)
	if err != nil {
		return 0, err
	}
	if err := m.requireLoaded(m.loadedTileOffsets[i], "tile_offsets"); err != nil {
		return 0, err
	}
	offsets := m.tileOffsets[i]
	if tid < 0 || tid >= len(offsets) {
		return 0, errs.New(errs.UsageError, "fragment: tile index %d out of range for %q", tid, name)
	}
	if tid == len(offsets)-1 {
		return m.fileSizes[i] - offsets[tid], nil
	}
	return offsets[tid+1] - offsets[tid], nil
}

// PersistedTileVarSize is PersistedTileSize's counterpart for the var buffer.
func (m *Metadata) PersistedTileVarSize(name string, tid int) (uint64, error) {
	i, err := m.fieldIndex(name)
	if err != nil {
		return 0, err
	}
	if err := m.requireLoaded(m.loadedTileVar[i], "tile_var_offsets"); err != nil {
		return 0, err
	}
	offsets := m.tileVarOffsets[i]
	if tid < 0 || tid >= len(offsets) {
		return 0, errs.New(errs.UsageError, "fragment: tile index %d out of range for %q", tid, name)
	}
	if tid == len(offsets)-1 {
		return m.fileVarSizes[i] - offsets[tid], nil
	}
	return offsets[tid+1] - offsets[tid], nil
}

// PersistedTileValiditySize is PersistedTileSize's counterpart for the
// validity buffer.
func (m *Metadata) PersistedTileValiditySize(name string, tid int) (uint64, error) {
	i, err := m.fieldIndex(name)
	if err != nil {
		return 0, err
	}
	if err := m.requireLoaded(m.loadedValidity, "tile_validity_offsets"); err != nil {
		return 0, err
	}
	offsets := m.tileValidityOffsets[i]
	if tid < 0 || tid >= len(offsets) {
		return 0, errs.New(errs.UsageError, "fragment: tile index %d out of range for %q", tid, name)
	}
	if tid == len(offsets)-1 {
		return m.fileValiditySizes[i] - offsets[tid], nil
	}
	return offsets[tid+1] - offsets[tid], nil
}

// cellNum returns the logical cell count of tile tid for this
// fragment: cells_per_tile for dense, capacity for sparse except the
// fragment's last tile, which holds last_tile_cell_num.
func (m *Metadata) cellNum(tid int) (uint64, error) {
	total, err := m.TileNum()
	if err != nil {
		return 0, err
	}
	if m.Dense {
		return m.Schema.Domain.CellNumPerTile()
	}
	if uint64(tid) == total-1 {
		return m.LastTileCellNum, nil
	}
	return m.Schema.Capacity, nil
}

// TileSize returns tile_size(name, tid): the logical, uncompressed
// byte size implied by the schema rather than what is persisted.
func (m *Metadata) TileSize(name string, tid int) (uint64, error) {
	i, err := m.fieldIndex(name)
	if err != nil {
		return 0, err
	}
	cells, err := m.cellNum(tid)
	if err != nil {
		return 0, err
	}
	f := m.fields[i]
	if f.isVar() {
		const offsetSize = 8
		return (cells + 1) * offsetSize, nil
	}
	cellSize := uint64(f.Datatype.ByteSize()) * uint64(f.CellValNum)
	return cells * cellSize, nil
}

// TileVarSize returns the persisted tile_var_sizes entry for tid,
// which differs from PersistedTileVarSize exactly when the var payload
// is filtered (compressed/encrypted) on disk.
func (m *Metadata) TileVarSize(name string, tid int) (uint64, error) {
	i, err := m.fieldIndex(name)
	if err != nil {
		return 0, err
	}
	if err := m.requireLoaded(m.loadedTileVar[i], "tile_var_sizes"); err != nil {
		return 0, err
	}
	if tid < 0 || tid >= len(m.tileVarSizes[i]) {
		return 0, errs.New(errs.UsageError, "fragment: tile index %d out of range for %q", tid, name)
	}
	return m.tileVarSizes[i][tid], nil
}

// GetTileMin returns the raw min bytes for tile tid of a fixed-size
// field, or the (start, end) slice of the var buffer for a var field.
func (m *Metadata) GetTileMin(name string, tid int) ([]byte, error) {
	i, err := m.fieldIndex(name)
	if err != nil {
		return nil, err
	}
	if err := m.requireLoaded(m.loadedStats, "tile stats"); err != nil {
		return nil, err
	}
	f := m.fields[i]
	if !f.Datatype.HasMinMaxMetadata() {
		return nil, errs.New(errs.UsageError, "fragment: field %q carries no min/max metadata", name)
	}
	var vals [][]byte
	if f.isVar() {
		vals = m.varStats[i].Min
	} else {
		vals = m.fixedStats[i].Min
	}
	return tileStatAt(vals, tid, name)
}

// GetTileMax is GetTileMin's symmetric counterpart.
func (m *Metadata) GetTileMax(name string, tid int) ([]byte, error) {
	i, err := m.fieldIndex(name)
	if err != nil {
		return nil, err
	}
	if err := m.requireLoaded(m.loadedStats, "tile stats"); err != nil {
		return nil, err
	}
	f := m.fields[i]
	if !f.Datatype.HasMinMaxMetadata() {
		return nil, errs.New(errs.UsageError, "fragment: field %q carries no min/max metadata", name)
	}
	var vals [][]byte
	if f.isVar() {
		vals = m.varStats[i].Max
	} else {
		vals = m.fixedStats[i].Max
	}
	return tileStatAt(vals, tid, name)
}

func tileStatAt(vals [][]byte, tid int, name string) ([]byte, error) {
	if tid < 0 || tid >= len(vals) {
		return nil, errs.New(errs.UsageError, "fragment: tile index %d out of range for %q", tid, name)
	}
	return vals[tid], nil
}

// GetTileSum returns tile tid's accumulated sum for field name, as the
// raw 8 little-endian bytes stored on disk (reinterpret as
// int64/uint64/float64 per the field's datatype).
func (m *Metadata) GetTileSum(name string, tid int) ([8]byte, error) {
	i, err := m.fieldIndex(name)
	if err != nil {
		return [8]byte{}, err
	}
	if err := m.requireLoaded(m.loadedStats, "tile stats"); err != nil {
		return [8]byte{}, err
	}
	f := m.fields[i]
	if !f.Datatype.HasSumMetadata() {
		return [8]byte{}, errs.New(errs.UsageError, "fragment: field %q carries no sum metadata", name)
	}
	if f.isVar() {
		return [8]byte{}, errs.New(errs.UsageError, "fragment: var field %q carries no sum metadata", name)
	}
	if tid < 0 || tid >= len(m.fixedStats[i].Sum) {
		return [8]byte{}, errs.New(errs.UsageError, "fragment: tile index %d out of range for %q", tid, name)
	}
	return m.fixedStats[i].Sum[tid], nil
}

// GetTileNullCount returns tile tid's null count for field name.
func (m *Metadata) GetTileNullCount(name string, tid int) (uint64, error) {
	i, err := m.fieldIndex(name)
	if err != nil {
		return 0, err
	}
	if err := m.requireLoaded(m.loadedStats, "tile stats"); err != nil {
		return 0, err
	}
	f := m.fields[i]
	var counts []uint64
	if f.isVar() {
		counts = m.varStats[i].NullCount
	} else {
		counts = m.fixedStats[i].NullCount
	}
	if tid < 0 || tid >= len(counts) {
		return 0, errs.New(errs.UsageError, "fragment: tile index %d out of range for %q", tid, name)
	}
	return counts[tid], nil
}

// GetTileMetadata assembles the aggregation adapter for tile tid of
// field name. For dimensions, min/max come from the R-tree leaf on
// that dimension rather than per-tile stats, since dimensions carry no
// independent min/max section of their own.
func (m *Metadata) GetTileMetadata(name string, tid int) (TileMetadata, error) {
	i, err := m.fieldIndex(name)
	if err != nil {
		return TileMetadata{}, err
	}
	cells, err := m.cellNum(tid)
	if err != nil {
		return TileMetadata{}, err
	}
	tm := TileMetadata{Count: cells}

	f := m.fields[i]
	if f.Kind == fieldDimension {
		if err := m.requireLoaded(m.loadedRTree, "rtree"); err != nil {
			return TileMetadata{}, err
		}
		leaves := m.RTree.Leaves()
		if tid < 0 || tid >= len(leaves) {
			return TileMetadata{}, errs.New(errs.UsageError, "fragment: tile index %d out of range for %q", tid, name)
		}
		dimIdx := m.dimOrdinal(i)
		start, end, _ := leaves[tid][dimIdx].StartEnd()
		tm.Min, tm.Max = start, end
		return tm, nil
	}

	nullCount, err := m.GetTileNullCount(name, tid)
	if err != nil {
		return TileMetadata{}, err
	}
	tm.NullCount = nullCount
	if f.Datatype.HasMinMaxMetadata() {
		if tm.Min, err = m.GetTileMin(name, tid); err != nil {
			return TileMetadata{}, err
		}
		if tm.Max, err = m.GetTileMax(name, tid); err != nil {
			return TileMetadata{}, err
		}
	}
	if f.Datatype.HasSumMetadata() && !f.isVar() {
		tm.Sum, err = m.GetTileSum(name, tid)
		if err != nil {
			return TileMetadata{}, err
		}
		tm.HasSum = true
	}
	return tm, nil
}
