package shared

// DataType tags the purpose of a read/write call against an
// underlying store, mirroring the per-section accounting the VFS layer
// and the memory tracker both key off of.
type DataType string

// DataType constants.
const (
	DataTypeFooter             DataType = "footer"
	DataTypeSchema             DataType = "schema"
	DataTypeRTree              DataType = "rtree"
	DataTypeTileOffsets        DataType = "tile_offsets"
	DataTypeMinMaxSumNullCount DataType = "min_max_sum_null_count"
	DataTypeTile               DataType = "tile"
	DataTypeProcessedCond      DataType = "processed_conditions"
)

// ReaderProvider is the minimal read surface a storage backend must
// expose. vfs.ObjectStore backends satisfy it; fragment/fraginfo code
// never talks to os.File or an S3 client directly.
type ReaderProvider interface {
	// Size returns the total byte length of uri.
	Size(uri string) (int64, error)
	// ReadAt reads len(p) bytes from uri at off, tagging the read with
	// dataType for logging/metrics attribution.
	ReadAt(p []byte, uri string, off int64, dataType DataType) (int, error)
}

// WriterProvider is the minimal write surface a storage backend must
// expose.
type WriterProvider interface {
	// Write writes buf to uri, replacing any existing object.
	Write(uri string, buf []byte) error
	// Remove deletes uri. Removing a nonexistent uri is not an error.
	Remove(uri string) error
}

// FilterKind identifies one stage of a tile's filter pipeline. Order in
// a pipeline is the order filters are applied on write and reversed on
// read.
type FilterKind uint8

// FilterKind constants.
const (
	FilterNone FilterKind = iota
	FilterZstd
	FilterAES256GCM
)

// String renders a human-readable FilterKind name.
func (f FilterKind) String() string {
	switch f {
	case FilterNone:
		return "none"
	case FilterZstd:
		return "zstd"
	case FilterAES256GCM:
		return "aes256gcm"
	default:
		return "unknown"
	}
}
