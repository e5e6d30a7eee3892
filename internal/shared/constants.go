package shared

// Format version gates. Each constant names the version at which a
// footer/metadata-file section first appears.
const (
	// MinSupportedVersion is the oldest format version this core can
	// open; versions 1-2 predate a stable footer layout and are
	// rejected rather than read.
	MinSupportedVersion uint32 = 3

	VersionFileValiditySizes      uint32 = 7  // file_validity_sizes[], tile_validity_offsets
	VersionCompactFieldNames      uint32 = 8  // compact on-disk field names (a{idx}, d{idx}, fixed tokens); no percent-encoding
	VersionSchemaName             uint32 = 10 // array_schema_name + footer size trailer always written
	VersionTileMinMaxSumNullCount uint32 = 11 // per-tile min/max/sum/null_count sections
	VersionFragmentRollup         uint32 = 12 // fragment_min_max_sum_null_count section
	VersionHasTimestamps          uint32 = 14 // has_timestamps flag + timestamps field
	VersionHasDeleteMeta          uint32 = 15 // has_delete_meta flag + delete_ts/delete_idx fields
	VersionProcessedConditions    uint32 = 16 // processed_conditions section

	CurrentVersion uint32 = VersionProcessedConditions
)

// Magic numbers and fixed-size headers for the generic-tile wrapper and
// the fragment metadata file footer trailer.
const (
	GenericTileMagic uint32 = 0x54444247 // "TDBG" little-endian

	GenericTileHeaderSize = 4 + 1 + 1 + 8 + 8 + 4 // magic, version, filter_kind, uncompressed_size, persisted_size, crc32

	FooterSizeTrailerBytes = 8 // little-endian u64 footer size, appended after the footer payload
)

// Limits bound adversarial or malformed inputs during deserialization so
// a corrupt footer cannot force an unbounded allocation.
const (
	MaxDimensions    = 1 << 16
	MaxAttributes    = 1 << 20
	MaxFieldCount    = MaxAttributes + MaxDimensions + 4
	MaxTileCount     = 1 << 40
	MaxSectionLength = 1 << 34 // 16 GiB; generous but not unbounded
)

// MemoryType tags a lazily-loaded section for MemoryTracker accounting.
type MemoryType uint8

const (
	MemoryRTree MemoryType = iota
	MemoryTileOffsets
	MemoryTileVarOffsets
	MemoryTileVarSizes
	MemoryTileValidityOffsets
	MemoryMinMaxSumNullCount
	MemoryFooter
	MemoryProcessedConditions
)

// String renders a human-readable MemoryType name for logging/metrics labels.
func (m MemoryType) String() string {
	switch m {
	case MemoryRTree:
		return "rtree"
	case MemoryTileOffsets:
		return "tile_offsets"
	case MemoryTileVarOffsets:
		return "tile_var_offsets"
	case MemoryTileVarSizes:
		return "tile_var_sizes"
	case MemoryTileValidityOffsets:
		return "tile_validity_offsets"
	case MemoryMinMaxSumNullCount:
		return "min_max_sum_null_count"
	case MemoryFooter:
		return "footer"
	case MemoryProcessedConditions:
		return "processed_conditions"
	default:
		return "unknown"
	}
}
