// Package fragcore is the public entry point to the module: a thin
// façade of type aliases and constructors over internal/ — keep the
// internal packages doing the work, expose just enough here for an
// external caller to build a schema, open storage, and load fragment
// metadata without importing internal/ directly.
package fragcore

import (
	"github.com/mattdurham/fragcore/internal/config"
	"github.com/mattdurham/fragcore/internal/dimension"
	"github.com/mattdurham/fragcore/internal/fraginfo"
	"github.com/mattdurham/fragcore/internal/fragment"
	"github.com/mattdurham/fragcore/internal/generictile"
	"github.com/mattdurham/fragcore/internal/memtracker"
	"github.com/mattdurham/fragcore/internal/resources"
	"github.com/mattdurham/fragcore/internal/schema"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/mattdurham/fragcore/internal/vfs"
)

// Datatype is the scalar cell type enumeration shared by dimensions
// and attributes.
type Datatype = shared.Datatype

// Datatype constants, re-exported for callers outside internal/.
const (
	Int8        = shared.Int8
	Uint8       = shared.Uint8
	Int16       = shared.Int16
	Uint16      = shared.Uint16
	Int32       = shared.Int32
	Uint32      = shared.Uint32
	Int64       = shared.Int64
	Uint64      = shared.Uint64
	Float32     = shared.Float32
	Float64     = shared.Float64
	Char        = shared.Char
	Byte        = shared.Byte
	StringASCII = shared.StringASCII
	Boolean     = shared.Boolean
)

type (
	// Dimension is one axis of an array's domain.
	Dimension = dimension.Dimension
	// Domain is an array's full set of dimensions.
	Domain = dimension.Domain
	// Attribute is one non-dimension field of an array.
	Attribute = schema.Attribute
	// ArraySchema describes an array's dimensions, attributes, and
	// write-format version.
	ArraySchema = schema.ArraySchema
	// FragmentMetadata is one fragment's footer: rollups, tile
	// offsets, R-tree, and per-field statistics.
	FragmentMetadata = fragment.Metadata
	// FragmentLoadOptions configures LoadFragmentMetadata.
	FragmentLoadOptions = fragment.LoadOptions
	// FragmentInfo is an array's collection of fragments over a
	// timestamp window.
	FragmentInfo = fraginfo.Info
	// ObjectStore is the storage abstraction every fragment and
	// FragmentInfo operation reads and writes through.
	ObjectStore = vfs.ObjectStore
	// Config is the top-level memory/storage/pool/cache configuration.
	Config = config.Config
	// EncryptionKey decrypts a fragment written with an encrypted
	// filter pipeline; nil for unencrypted fragments.
	EncryptionKey = generictile.Key
)

// DefaultConfig returns a Config with sane defaults for local,
// single-process use.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads and parses a YAML config document from path.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// OpenLocalStore opens a filesystem-backed ObjectStore rooted at root.
// root must already exist.
func OpenLocalStore(root string) (ObjectStore, error) { return vfs.NewLocalStore(root) }

// NewDimension validates and constructs a Dimension. domainLow,
// domainHigh, and extent (may be nil) are each exactly dt.ByteSize()
// bytes in little-endian form.
func NewDimension(name string, dt Datatype, domainLow, domainHigh, extent []byte) (*Dimension, error) {
	return dimension.New(name, dt, domainLow, domainHigh, extent)
}

// NewDomain aggregates dims into a Domain, ordered row-major unless
// colMajor is set.
func NewDomain(colMajor bool, dims ...*Dimension) *Domain {
	return dimension.NewDomain(colMajor, dims...)
}

// NewMemoryTracker returns a memory budget tracker shared across every
// FragmentMetadata and FragmentInfo built against it. A budget of 0
// means unbounded.
func NewMemoryTracker(budget int64) *memtracker.Tracker { return memtracker.New(budget) }

// NewPool returns a compute pool bounded to at most workers concurrent
// goroutines, used for parallel rollup and R-tree build work. workers
// <= 0 means unbounded.
func NewPool(workers int) *resources.Pool { return resources.New(workers) }

// NewFragmentMetadata constructs a fresh, writable fragment footer
// against sch, ready for BuildRTree/SetTileOffset/AddTileStats/Store.
func NewFragmentMetadata(pool *resources.Pool, tracker *memtracker.Tracker, sch *ArraySchema, uri string, timestampStart, timestampEnd uint64, dense, hasTimestamps, hasDeleteMeta bool) (*FragmentMetadata, error) {
	return fragment.New(pool, tracker, sch, uri, timestampStart, timestampEnd, dense, hasTimestamps, hasDeleteMeta)
}

// LoadFragmentMetadata loads a single fragment's footer from storage,
// either from its own metadata file or, when opts.Consolidated is set,
// from an already-loaded consolidated metadata blob.
func LoadFragmentMetadata(opts FragmentLoadOptions) (*FragmentMetadata, error) {
	return fragment.Load(opts)
}

// NewFragmentInfo binds a FragmentInfo to one array's storage, memory
// budget, compute pool, and schema set. schemas must include every
// schema name any fragment under arrayURI may reference; latestSchema
// is the array's current schema.
func NewFragmentInfo(arrayURI string, store ObjectStore, tracker *memtracker.Tracker, pool *resources.Pool, latestSchema *ArraySchema, schemas map[string]*ArraySchema) *FragmentInfo {
	return fraginfo.New(arrayURI, store, tracker, pool, latestSchema, schemas)
}
