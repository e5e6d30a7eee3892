// Package fragment implements FragmentMetadata, the per-fragment
// manifest that is the heart of this core: field index map, lifecycle
// (construction through store/load), lazy-loaded accessors, overlap
// queries, consolidated metadata, and the versioned on-disk footer
// format.
package fragment

import (
	"sync"

	"github.com/mattdurham/fragcore/internal/generictile"
	"github.com/mattdurham/fragcore/internal/memtracker"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/resources"
	"github.com/mattdurham/fragcore/internal/rtree"
	"github.com/mattdurham/fragcore/internal/schema"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/mattdurham/fragcore/internal/vfs"
)

// perFieldFixedStats holds one field's per-tile fixed-size min/max
// values plus its sum/null_count arrays. Min/Max entries are nil for
// fields with HasMinMaxMetadata()==false (e.g. booleans).
type perFieldFixedStats struct {
	Min       [][]byte
	Max       [][]byte
	Sum       [][8]byte
	NullCount []uint64
}

// perFieldVarStats holds one field's per-tile variable-length min/max
// values. Var fields carry no sum: there is no fixed-width
// representation to accumulate one into.
type perFieldVarStats struct {
	Min       [][]byte
	Max       [][]byte
	NullCount []uint64
}

// rollup is a field's fragment-level (min, max, sum, null_count),
// computed by ComputeFragmentRollup.
type rollup struct {
	Min       []byte
	Max       []byte
	Sum       [8]byte
	NullCount uint64
}

// Metadata is the per-fragment manifest: FragmentMetadata.
type Metadata struct {
	Version         uint32
	ArraySchemaName string
	Schema          *schema.ArraySchema
	URI             string
	TimestampStart  uint64
	TimestampEnd    uint64
	Dense           bool
	HasTimestamps   bool
	HasDeleteMeta   bool

	NonEmptyDomain      rangeidx.NDRange
	nonEmptyDomainValid bool
	ExpandedDomain      rangeidx.NDRange // dense only: domain_ expanded to tile boundaries
	SparseTileNum       uint64
	LastTileCellNum     uint64

	fields   []field
	fieldIdx map[string]int

	fileSizes         []uint64
	fileVarSizes      []uint64
	fileValiditySizes []uint64

	tileOffsets         [][]uint64
	tileVarOffsets      [][]uint64
	tileVarSizes        [][]uint64
	tileValidityOffsets [][]uint64

	fixedStats []perFieldFixedStats
	varStats   []perFieldVarStats
	// minVarFlipped/maxVarFlipped latch FlipMinMaxVarOffsets: the
	// size->offset conversion is a serialization-time concern (see
	// sections.go's encodeVarMinMax), but the flip itself must
	// happen, and happen exactly once, before Store.
	minVarFlipped []bool
	maxVarFlipped []bool

	rollups []rollup

	ProcessedConditions []string

	RTree *rtree.RTree

	tileIndexBase uint64

	pool    *resources.Pool
	tracker *memtracker.Tracker
	store   vfs.ObjectStore
	key     generictile.Key
	sec     sectionOffsets

	mu                sync.Mutex
	rtreeMu           sync.Mutex
	tileOffsetsMu     []sync.Mutex
	tileVarOffsetsMu  []sync.Mutex
	rtreeBytes        int64
	loadedRTree       bool
	loadedTileOffsets []bool
	loadedTileVar     []bool
	loadedValidity    bool
	loadedStats       bool
	loadedRollup      bool
	loadedConditions  bool
	loadedFooter      bool

	consolidatedOffset uint64 // set when loaded from a consolidated footer blob
}

// New constructs a writer-side Metadata for a fragment about to be
// written: t_start/t_end identify the fragment's timestamp range;
// dense/hasTimestamps/hasDeleteMeta select which pseudo-fields exist.
func New(pool *resources.Pool, tracker *memtracker.Tracker, sch *schema.ArraySchema, uri string, tStart, tEnd uint64, dense, hasTimestamps, hasDeleteMeta bool) (*Metadata, error) {
	if err := sch.Validate(); err != nil {
		return nil, err
	}
	fields := buildFields(sch, dense, hasTimestamps, hasDeleteMeta)
	m := &Metadata{
		Version:         shared.CurrentVersion,
		ArraySchemaName: sch.Name,
		Schema:          sch,
		URI:             uri,
		TimestampStart:  tStart,
		TimestampEnd:    tEnd,
		Dense:           dense,
		HasTimestamps:   hasTimestamps,
		HasDeleteMeta:   hasDeleteMeta,
		fields:          fields,
		fieldIdx:        indexOfFields(fields),
		pool:            pool,
		tracker:         tracker,
	}
	return m, nil
}

// Init sizes every per-field vector to zero tiles, records the
// fragment's non-empty domain, and — for dense fragments — expands
// the domain out to tile boundaries so a later consolidation may
// legally include tiles outside the original write subarray.
func (m *Metadata) Init(nonEmptyDomain rangeidx.NDRange) error {
	n := len(m.fields)
	m.fileSizes = make([]uint64, n)
	m.fileVarSizes = make([]uint64, n)
	m.fileValiditySizes = make([]uint64, n)
	m.tileOffsets = make([][]uint64, n)
	m.tileVarOffsets = make([][]uint64, n)
	m.tileVarSizes = make([][]uint64, n)
	m.tileValidityOffsets = make([][]uint64, n)
	m.fixedStats = make([]perFieldFixedStats, n)
	m.varStats = make([]perFieldVarStats, n)
	m.minVarFlipped = make([]bool, n)
	m.maxVarFlipped = make([]bool, n)
	m.rollups = make([]rollup, n)
	m.tileOffsetsMu = make([]sync.Mutex, n)
	m.tileVarOffsetsMu = make([]sync.Mutex, n)
	m.loadedTileOffsets = make([]bool, n)
	m.loadedTileVar = make([]bool, n)

	if !nonEmptyDomain.Empty() {
		m.NonEmptyDomain = nonEmptyDomain
		m.nonEmptyDomainValid = true
	}
	if m.Dense {
		expanded, err := m.Schema.Domain.ExpandToTiles(nonEmptyDomain)
		if err != nil {
			return err
		}
		m.ExpandedDomain = expanded
	}
	// A freshly-initialized writer-side Metadata has every section
	// already "loaded" (it was just built, not read from storage).
	m.loadedRTree = true
	for i := range m.loadedTileOffsets {
		m.loadedTileOffsets[i] = true
		m.loadedTileVar[i] = true
	}
	m.loadedValidity = true
	m.loadedStats = true
	m.loadedRollup = true
	m.loadedConditions = true
	m.loadedFooter = true
	return nil
}

// TileNum returns tile_num(): the RTree leaf count for sparse
// fragments, or the dense tile count derived from the domain.
func (m *Metadata) TileNum() (uint64, error) {
	if !m.Dense {
		return m.SparseTileNum, nil
	}
	return m.Schema.Domain.TileNum()
}

// BumpTileIndexBase advances tile_index_base_ between consolidation
// passes so subsequent set_tile_* calls' tid arguments are interpreted
// relative to the new base.
func (m *Metadata) BumpTileIndexBase(n uint64) { m.tileIndexBase += n }
