package fraginfo

import (
	"path"

	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/fragment"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/schema"
)

// SingleFragmentInfo is one fragment's entry in a loaded Info: an
// eagerly-known footer-derived summary, plus lazy access to the
// fragment's own R-tree for per-tile MBRs.
type SingleFragmentInfo struct {
	uri             string
	dense           bool
	cellNum         uint64
	size            uint64
	tStart          uint64
	tEnd            uint64
	nonEmptyDomain  rangeidx.NDRange
	version         uint32
	arraySchema     *schema.ArraySchema
	arraySchemaName string

	hasConsolidatedMetadata bool

	// meta is non-nil once this fragment's own metadata file has been
	// loaded, either eagerly (cache miss during Load) or lazily (first
	// MBR access after a cache-hit summary).
	meta *fragment.Metadata
	// reload lazily re-derives meta for a cache-hit summary that skipped
	// the footer load. nil once meta is populated.
	reload func() (*fragment.Metadata, error)
}

func newSingleFragmentInfo(m *fragment.Metadata, size uint64, hasConsolidated bool) *SingleFragmentInfo {
	cellNum, _ := m.TileNum() // zero-value on error is an acceptable degraded summary field
	// fragment.Load leaves TimestampStart/TimestampEnd unset, so take the
	// range from the fragment directory name whenever it parses.
	tStart, tEnd := m.TimestampStart, m.TimestampEnd
	if p, err := parseFragmentDirName(path.Base(m.URI)); err == nil {
		tStart, tEnd = p.tStart, p.tEnd
	}
	return &SingleFragmentInfo{
		uri:                     m.URI,
		dense:                   m.Dense,
		cellNum:                 cellNum,
		size:                    size,
		tStart:                  tStart,
		tEnd:                    tEnd,
		nonEmptyDomain:          m.NonEmptyDomain,
		version:                 m.Version,
		arraySchema:             m.Schema,
		arraySchemaName:         m.ArraySchemaName,
		hasConsolidatedMetadata: hasConsolidated,
		meta:                    m,
	}
}

func (s *SingleFragmentInfo) ensureMeta() (*fragment.Metadata, error) {
	if s.meta != nil {
		return s.meta, nil
	}
	m, err := s.reload()
	if err != nil {
		return nil, err
	}
	s.meta = m
	s.reload = nil
	return m, nil
}

// Dense reports whether this fragment is dense.
func (s *SingleFragmentInfo) Dense() bool { return s.dense }

// Sparse reports whether this fragment is sparse.
func (s *SingleFragmentInfo) Sparse() bool { return !s.dense }

// CellNum returns tile_num() for this fragment (the RTree leaf count
// for sparse fragments, or the domain-derived dense tile count).
func (s *SingleFragmentInfo) CellNum() uint64 { return s.cellNum }

// Size returns the fragment's total on-disk footprint in bytes.
func (s *SingleFragmentInfo) Size() uint64 { return s.size }

// URI returns the fragment's own URI.
func (s *SingleFragmentInfo) URI() string { return s.uri }

// TimestampRange returns (t_start, t_end) for this fragment.
func (s *SingleFragmentInfo) TimestampRange() (uint64, uint64) { return s.tStart, s.tEnd }

// NonEmptyDomain returns the fragment's non-empty domain.
func (s *SingleFragmentInfo) NonEmptyDomain() rangeidx.NDRange { return s.nonEmptyDomain }

// Version returns the fragment's on-disk format version.
func (s *SingleFragmentInfo) Version() uint32 { return s.version }

// ArraySchema returns the schema this fragment was written against.
func (s *SingleFragmentInfo) ArraySchema() *schema.ArraySchema { return s.arraySchema }

// ArraySchemaName returns the schema name this fragment was written against.
func (s *SingleFragmentInfo) ArraySchemaName() string { return s.arraySchemaName }

// HasConsolidatedMetadata reports whether this fragment's footer was
// resolved from a consolidated metadata blob rather than its own
// per-fragment metadata file.
func (s *SingleFragmentInfo) HasConsolidatedMetadata() bool { return s.hasConsolidatedMetadata }

// MBRNum returns the number of per-tile MBRs (R-tree leaves) recorded
// for this fragment, loading the R-tree on first access.
func (s *SingleFragmentInfo) MBRNum() (uint64, error) {
	m, err := s.ensureMeta()
	if err != nil {
		return 0, err
	}
	if err := m.EnsureRTreeLoaded(); err != nil {
		return 0, err
	}
	return uint64(len(m.RTree.Leaves())), nil
}

// MBR returns leaf mid's bounding range along dimension did, loading
// the R-tree on first access.
func (s *SingleFragmentInfo) MBR(mid, did int) (rangeidx.Range, error) {
	m, err := s.ensureMeta()
	if err != nil {
		return rangeidx.Range{}, err
	}
	if err := m.EnsureRTreeLoaded(); err != nil {
		return rangeidx.Range{}, err
	}
	leaves := m.RTree.Leaves()
	if mid < 0 || mid >= len(leaves) {
		return rangeidx.Range{}, errs.New(errs.UsageError, "fraginfo: mbr index %d out of range", mid)
	}
	if did < 0 || did >= len(leaves[mid]) {
		return rangeidx.Range{}, errs.New(errs.UsageError, "fraginfo: dimension index %d out of range", did)
	}
	return leaves[mid][did], nil
}
