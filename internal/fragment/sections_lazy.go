package fragment

import (
	"github.com/mattdurham/fragcore/internal/resources"
	"github.com/mattdurham/fragcore/internal/shared"
)

// rtreeFanout is the child count per internal R-tree node used both
// when a fragment builds its tree fresh and when one is reconstructed
// from a stored section, fixed at a single value for the whole core so
// a stored tree always rebuilds with identical internal levels.
const rtreeFanout = 16

// loadRTree double-checked-locks the R-tree section into memory,
// rebuilding internal levels from the persisted leaves.
func (m *Metadata) loadRTree() error {
	if m.loadedRTree {
		return nil
	}
	m.rtreeMu.Lock()
	defer m.rtreeMu.Unlock()
	if m.loadedRTree {
		return nil
	}
	data, err := m.readSection(m.sec.RTree)
	if err != nil {
		resources.RecordLoad("rtree", "error")
		return err
	}
	t, err := decodeRTree(data, m.dimRefs(), rtreeFanout, m.Schema.Domain)
	if err != nil {
		resources.RecordLoad("rtree", "error")
		return err
	}
	if err := m.tracker.TakeMemory(int64(len(data)), shared.MemoryRTree); err != nil {
		return err
	}
	m.RTree = t
	m.rtreeBytes = int64(len(data))
	m.loadedRTree = true
	resources.RecordLoad("rtree", "miss")
	return nil
}

// EnsureRTreeLoaded loads the R-tree section if not already resident,
// for callers outside this package (fraginfo's MBR accessors) that
// need RTree populated without reaching into unexported state.
func (m *Metadata) EnsureRTreeLoaded() error { return m.loadRTree() }

// freeRTree releases the R-tree's reserved memory and clears it.
func (m *Metadata) freeRTree() {
	m.rtreeMu.Lock()
	defer m.rtreeMu.Unlock()
	if !m.loadedRTree {
		return
	}
	m.tracker.ReleaseMemory(m.rtreeBytes, shared.MemoryRTree)
	m.RTree = nil
	m.rtreeBytes = 0
	m.loadedRTree = false
}

// loadTileOffsets double-checked-locks field i's tile_offsets array.
func (m *Metadata) loadTileOffsets(i int) error {
	if m.loadedTileOffsets[i] {
		return nil
	}
	m.tileOffsetsMu[i].Lock()
	defer m.tileOffsetsMu[i].Unlock()
	if m.loadedTileOffsets[i] {
		return nil
	}
	data, err := m.readSection(m.sec.TileOffsets[i])
	if err != nil {
		resources.RecordLoad("tile_offsets", "error")
		return err
	}
	vals, err := decodeU64Array(data)
	if err != nil {
		resources.RecordLoad("tile_offsets", "error")
		return err
	}
	if err := m.tracker.TakeMemory(int64(len(vals))*8, shared.MemoryTileOffsets); err != nil {
		return err
	}
	m.tileOffsets[i] = vals
	m.loadedTileOffsets[i] = true
	resources.RecordLoad("tile_offsets", "miss")
	return nil
}

func (m *Metadata) freeTileOffsets(i int) {
	m.tileOffsetsMu[i].Lock()
	defer m.tileOffsetsMu[i].Unlock()
	if !m.loadedTileOffsets[i] {
		return
	}
	m.tracker.ReleaseMemory(int64(len(m.tileOffsets[i]))*8, shared.MemoryTileOffsets)
	m.tileOffsets[i] = nil
	m.loadedTileOffsets[i] = false
}

// loadTileVar double-checked-locks field i's tile_var_offsets and
// tile_var_sizes arrays together; the two are always loaded as a pair
// since every var accessor needs both to compute a tile's byte span.
func (m *Metadata) loadTileVar(i int) error {
	if m.loadedTileVar[i] {
		return nil
	}
	m.tileVarOffsetsMu[i].Lock()
	defer m.tileVarOffsetsMu[i].Unlock()
	if m.loadedTileVar[i] {
		return nil
	}
	offData, err := m.readSection(m.sec.TileVarOffsets[i])
	if err != nil {
		resources.RecordLoad("tile_var_offsets", "error")
		return err
	}
	offsets, err := decodeU64Array(offData)
	if err != nil {
		resources.RecordLoad("tile_var_offsets", "error")
		return err
	}
	sizeData, err := m.readSection(m.sec.TileVarSizes[i])
	if err != nil {
		resources.RecordLoad("tile_var_sizes", "error")
		return err
	}
	sizes, err := decodeU64Array(sizeData)
	if err != nil {
		resources.RecordLoad("tile_var_sizes", "error")
		return err
	}
	if err := m.tracker.TakeMemory(int64(len(offsets)+len(sizes))*8, shared.MemoryTileVarOffsets); err != nil {
		return err
	}
	m.tileVarOffsets[i] = offsets
	m.tileVarSizes[i] = sizes
	m.loadedTileVar[i] = true
	resources.RecordLoad("tile_var_offsets", "miss")
	return nil
}

func (m *Metadata) freeTileVar(i int) {
	m.tileVarOffsetsMu[i].Lock()
	defer m.tileVarOffsetsMu[i].Unlock()
	if !m.loadedTileVar[i] {
		return
	}
	m.tracker.ReleaseMemory(int64(len(m.tileVarOffsets[i])+len(m.tileVarSizes[i]))*8, shared.MemoryTileVarOffsets)
	m.tileVarOffsets[i] = nil
	m.tileVarSizes[i] = nil
	m.loadedTileVar[i] = false
}

// loadValidity double-checked-locks every field's tile_validity_offsets
// array at once; pre-v7 fragments have no validity section at all.
func (m *Metadata) loadValidity() error {
	if m.loadedValidity {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadedValidity {
		return nil
	}
	if m.Version < shared.VersionFileValiditySizes {
		m.loadedValidity = true
		return nil
	}
	total := int64(0)
	out := make([][]uint64, len(m.fields))
	for i := range m.fields {
		data, err := m.readSection(m.sec.TileValidityOffsets[i])
		if err != nil {
			resources.RecordLoad("tile_validity_offsets", "error")
			return err
		}
		vals, err := decodeU64Array(data)
		if err != nil {
			resources.RecordLoad("tile_validity_offsets", "error")
			return err
		}
		out[i] = vals
		total += int64(len(vals)) * 8
	}
	if err := m.tracker.TakeMemory(total, shared.MemoryTileValidityOffsets); err != nil {
		return err
	}
	m.tileValidityOffsets = out
	m.loadedValidity = true
	resources.RecordLoad("tile_validity_offsets", "miss")
	return nil
}

func (m *Metadata) freeValidity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loadedValidity {
		return
	}
	var total int64
	for _, v := range m.tileValidityOffsets {
		total += int64(len(v)) * 8
	}
	m.tracker.ReleaseMemory(total, shared.MemoryTileValidityOffsets)
	for i := range m.tileValidityOffsets {
		m.tileValidityOffsets[i] = nil
	}
	m.loadedValidity = false
}

// loadStats double-checked-locks every field's min/max/sum/null_count
// sections; pre-v11 fragments carry no per-tile stats at all.
func (m *Metadata) loadStats() error {
	if m.loadedStats {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadedStats {
		return nil
	}
	if m.Version < shared.VersionTileMinMaxSumNullCount {
		m.loadedStats = true
		return nil
	}
	var total int64
	for i, f := range m.fields {
		var minVals, maxVals [][]byte
		var err error
		minData, err := m.readSection(m.sec.TileMin[i])
		if err != nil {
			resources.RecordLoad("tile_min", "error")
			return err
		}
		maxData, err := m.readSection(m.sec.TileMax[i])
		if err != nil {
			resources.RecordLoad("tile_max", "error")
			return err
		}
		if f.isVar() {
			minVals, err = decodeVarMinMax(minData)
			if err != nil {
				return err
			}
			maxVals, err = decodeVarMinMax(maxData)
			if err != nil {
				return err
			}
		} else {
			minVals, err = decodeFixedMinMax(minData, f.Datatype.ByteSize())
			if err != nil {
				return err
			}
			maxVals, err = decodeFixedMinMax(maxData, f.Datatype.ByteSize())
			if err != nil {
				return err
			}
		}
		sumData, err := m.readSection(m.sec.TileSum[i])
		if err != nil {
			resources.RecordLoad("tile_sum", "error")
			return err
		}
		sums, err := decodeSumArray(sumData)
		if err != nil {
			return err
		}
		ncData, err := m.readSection(m.sec.TileNullCount[i])
		if err != nil {
			resources.RecordLoad("tile_null_count", "error")
			return err
		}
		nullCounts, err := decodeU64Array(ncData)
		if err != nil {
			return err
		}
		total += int64(len(minData) + len(maxData) + len(sumData) + len(ncData))
		if f.isVar() {
			m.varStats[i] = perFieldVarStats{Min: minVals, Max: maxVals, NullCount: nullCounts}
		} else {
			m.fixedStats[i] = perFieldFixedStats{Min: minVals, Max: maxVals, Sum: sums, NullCount: nullCounts}
		}
	}
	if err := m.tracker.TakeMemory(total, shared.MemoryMinMaxSumNullCount); err != nil {
		return err
	}
	m.loadedStats = true
	resources.RecordLoad("tile_min", "miss")
	return nil
}

func (m *Metadata) freeStats() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loadedStats {
		return
	}
	m.fixedStats = make([]perFieldFixedStats, len(m.fields))
	m.varStats = make([]perFieldVarStats, len(m.fields))
	m.loadedStats = false
}

// loadFragmentRollup double-checked-locks the fragment-level
// min/max/sum/null_count section; pre-v12 fragments carry none.
func (m *Metadata) loadFragmentRollup() error {
	if m.loadedRollup {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadedRollup {
		return nil
	}
	if m.Version < shared.VersionFragmentRollup {
		m.rollups = make([]rollup, len(m.fields))
		m.loadedRollup = true
		return nil
	}
	data, err := m.readSection(m.sec.FragmentRollup)
	if err != nil {
		resources.RecordLoad("fragment_rollup", "error")
		return err
	}
	if err := m.decodeRollupSection(data); err != nil {
		resources.RecordLoad("fragment_rollup", "error")
		return err
	}
	if err := m.tracker.TakeMemory(int64(len(data)), shared.MemoryFooter); err != nil {
		return err
	}
	m.loadedRollup = true
	resources.RecordLoad("fragment_rollup", "miss")
	return nil
}

func (m *Metadata) freeFragmentRollup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loadedRollup {
		return
	}
	m.rollups = make([]rollup, len(m.fields))
	m.loadedRollup = false
}

// loadProcessedConditions double-checked-locks the processed_conditions
// section; pre-v16 fragments carry none.
func (m *Metadata) loadProcessedConditions() error {
	if m.loadedConditions {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadedConditions {
		return nil
	}
	if m.Version < shared.VersionProcessedConditions {
		m.loadedConditions = true
		return nil
	}
	data, err := m.readSection(m.sec.ProcessedConditions)
	if err != nil {
		resources.RecordLoad("processed_conditions", "error")
		return err
	}
	conditions, err := decodeProcessedConditions(data)
	if err != nil {
		resources.RecordLoad("processed_conditions", "error")
		return err
	}
	if err := m.tracker.TakeMemory(int64(len(data)), shared.MemoryProcessedConditions); err != nil {
		return err
	}
	m.ProcessedConditions = conditions
	m.loadedConditions = true
	resources.RecordLoad("processed_conditions", "miss")
	return nil
}

func (m *Metadata) freeProcessedConditions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loadedConditions {
		return
	}
	m.tracker.ReleaseMemory(int64(len(m.ProcessedConditions)), shared.MemoryProcessedConditions)
	m.ProcessedConditions = nil
	m.loadedConditions = false
}
