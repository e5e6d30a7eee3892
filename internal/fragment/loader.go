package fragment

import (
	"sync"

	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/generictile"
	"github.com/mattdurham/fragcore/internal/memtracker"
	"github.com/mattdurham/fragcore/internal/resources"
	"github.com/mattdurham/fragcore/internal/schema"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/mattdurham/fragcore/internal/vfs"
	"github.com/mattdurham/fragcore/internal/wire"
)

// LoadOptions bundles Load's parameters: the decryption key, the
// optional already-loaded consolidated footer blob and its offset for
// this fragment, and the schema set a footer's array_schema_name
// resolves against.
type LoadOptions struct {
	Store         vfs.ObjectStore
	Tracker       *memtracker.Tracker
	Pool          *resources.Pool
	URI           string
	Key           generictile.Key
	Schemas       map[string]*schema.ArraySchema
	DefaultSchema *schema.ArraySchema // used only for footers older than VersionSchemaName

	// Consolidated, when non-nil, is an already-loaded consolidated
	// footer blob; ConsolidatedOffset locates this fragment's footer
	// generic tile within it. When nil, the footer is read from this
	// fragment's own metadata file instead.
	Consolidated       *generictile.Tile
	ConsolidatedOffset uint64
}

// Load populates array_schema_name, selects the schema, and decodes
// only the footer; every other section stays on disk until first use
// via the load* methods in sections_lazy.go.
func Load(opts LoadOptions) (*Metadata, error) {
	footerTile, err := readFooterTile(opts)
	if err != nil {
		return nil, err
	}

	m := &Metadata{
		URI:     opts.URI,
		store:   opts.Store,
		tracker: opts.Tracker,
		pool:    opts.Pool,
		key:     opts.Key,
	}
	if opts.Consolidated != nil {
		m.consolidatedOffset = opts.ConsolidatedOffset
	}

	off, err := m.decodeFooterPayload(footerTile.Data, opts.Schemas, opts.DefaultSchema)
	if err != nil {
		return nil, err
	}
	m.sec = off
	m.initLazyState()
	m.loadedFooter = true
	return m, nil
}

func readFooterTile(opts LoadOptions) (generictile.Tile, error) {
	if opts.Consolidated != nil {
		tile, _, err := generictile.ReadGeneric(opts.Consolidated.Data[opts.ConsolidatedOffset:], opts.Key)
		if err != nil {
			return generictile.Tile{}, err
		}
		return tile, nil
	}

	path := opts.URI + "/" + metadataFileName
	size, err := opts.Store.Size(path)
	if err != nil {
		return generictile.Tile{}, err
	}
	if size < shared.FooterSizeTrailerBytes {
		return generictile.Tile{}, errs.New(errs.Truncated, "fragment: metadata file %s shorter than its trailer", path)
	}
	trailer := make([]byte, shared.FooterSizeTrailerBytes)
	if _, err := opts.Store.ReadAt(trailer, path, size-shared.FooterSizeTrailerBytes, shared.DataTypeFooter); err != nil {
		return generictile.Tile{}, err
	}
	footerSize, err := wire.NewCursor(trailer).GetUint64()
	if err != nil {
		return generictile.Tile{}, err
	}
	footerOffset := size - shared.FooterSizeTrailerBytes - int64(footerSize)
	if footerOffset < 0 {
		return generictile.Tile{}, errs.New(errs.Corrupt, "fragment: %s footer size %d exceeds file size", path, footerSize)
	}
	buf := make([]byte, footerSize)
	if _, err := opts.Store.ReadAt(buf, path, footerOffset, shared.DataTypeFooter); err != nil {
		return generictile.Tile{}, err
	}
	tile, _, err := generictile.ReadGeneric(buf, opts.Key)
	if err != nil {
		return generictile.Tile{}, err
	}
	return tile, nil
}

// initLazyState sizes the per-field lazy-load bookkeeping once the
// field count is known (after decodeFooterPayload has resolved the
// schema and dense/timestamps/delete-meta flags).
func (m *Metadata) initLazyState() {
	n := len(m.fields)
	m.tileOffsets = make([][]uint64, n)
	m.tileVarOffsets = make([][]uint64, n)
	m.tileVarSizes = make([][]uint64, n)
	m.tileValidityOffsets = make([][]uint64, n)
	m.fixedStats = make([]perFieldFixedStats, n)
	m.varStats = make([]perFieldVarStats, n)
	m.rollups = make([]rollup, n)
	m.tileOffsetsMu = make([]sync.Mutex, n)
	m.tileVarOffsetsMu = make([]sync.Mutex, n)
	m.loadedTileOffsets = make([]bool, n)
	m.loadedTileVar = make([]bool, n)
}

// readSection reads and decodes the generic tile at absolute offset
// off in this fragment's own metadata file. Sections beyond the footer
// are never part of a consolidated blob (only footers are
// consolidated), so this path ignores consolidatedOffset.
func (m *Metadata) readSection(off uint64) ([]byte, error) {
	path := m.URI + "/" + metadataFileName
	size, err := m.store.Size(path)
	if err != nil {
		return nil, err
	}
	if off >= uint64(size) {
		return nil, errs.New(errs.Corrupt, "fragment: section offset %d beyond file size %d", off, size)
	}
	// A generic tile's own header encodes its total length, but we
	// don't know it before reading the header; read the fixed header
	// first, then the declared payload length.
	header := make([]byte, shared.GenericTileHeaderSize)
	if _, err := m.store.ReadAt(header, path, int64(off), shared.DataTypeTile); err != nil {
		return nil, err
	}
	persistedSize, err := peekPersistedSize(header)
	if err != nil {
		return nil, err
	}
	total := shared.GenericTileHeaderSize + int(persistedSize)
	buf := make([]byte, total)
	if _, err := m.store.ReadAt(buf, path, int64(off), shared.DataTypeTile); err != nil {
		return nil, err
	}
	tile, _, err := generictile.ReadGeneric(buf, m.key)
	if err != nil {
		return nil, err
	}
	return tile.Data, nil
}

// peekPersistedSize extracts the persisted_size field from a generic
// tile's fixed header without validating its checksum (the full
// ReadGeneric call that follows does that).
func peekPersistedSize(header []byte) (uint64, error) {
	c := wire.NewCursor(header)
	if _, err := c.GetUint32(); err != nil { // magic
		return 0, err
	}
	if _, err := c.GetUint8(); err != nil { // version
		return 0, err
	}
	if _, err := c.GetUint8(); err != nil { // filter byte
		return 0, err
	}
	if _, err := c.GetUint64(); err != nil { // uncompressed_size
		return 0, err
	}
	return c.GetUint64() // persisted_size
}
