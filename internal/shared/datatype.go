// Package shared holds the types, constants, and storage-provider
// interfaces used by every layer of the fragment-metadata core: the
// scalar Datatype enumeration, on-disk format version gates, and the
// MemoryType/DataType tags used respectively by the memory tracker and
// the VFS read path.
package shared

// Datatype is the closed enumeration of scalar cell types.
type Datatype uint8

// Datatype constants. Values are stable and persisted in the wire
// format (NDRange/footer encoding never embeds Datatype directly today,
// but callers key off these constants when decoding typed buffers).
const (
	Int8 Datatype = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	Char
	Byte
	StringASCII
	DatetimeSecond
	DatetimeMillisecond
	DatetimeMicrosecond
	DatetimeNanosecond
	TimeSecond
	TimeMillisecond
	TimeMicrosecond
	TimeNanosecond
	Boolean
)

// CellValNumVar is the sentinel cell_val_num marking a variable-length field.
const CellValNumVar uint32 = 0xFFFFFFFF

// ByteSize returns the fixed per-cell-component byte width of d.
// Panics on an unrecognized Datatype — the set is closed and any new
// member must extend this switch.
func (d Datatype) ByteSize() int {
	switch d {
	case Int8, Uint8, Char, Byte, StringASCII, Boolean:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64, DatetimeSecond, DatetimeMillisecond, DatetimeMicrosecond, DatetimeNanosecond,
		TimeSecond, TimeMillisecond, TimeMicrosecond, TimeNanosecond:
		return 8
	default:
		panic("shared: unrecognized datatype")
	}
}

// IsInteger reports whether d is one of the signed/unsigned integer kinds.
func (d Datatype) IsInteger() bool {
	switch d {
	case Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64:
		return true
	default:
		return false
	}
}

// IsSigned reports whether d is a signed integer kind.
func (d Datatype) IsSigned() bool {
	switch d {
	case Int8, Int16, Int32, Int64:
		return true
	default:
		return false
	}
}

// IsReal reports whether d is a floating point kind.
func (d Datatype) IsReal() bool {
	return d == Float32 || d == Float64
}

// HasMinMaxMetadata reports whether tiles of this type contribute min/max stats.
// Booleans and blobs (Byte) carry no ordering that min/max pruning can use.
func (d Datatype) HasMinMaxMetadata() bool {
	return d != Boolean && d != Byte
}

// HasSumMetadata reports whether tiles of this type contribute a sum.
func (d Datatype) HasSumMetadata() bool {
	return d.IsInteger() || d.IsReal()
}

// String renders a human-readable datatype name, used in error messages.
func (d Datatype) String() string {
	switch d {
	case Int8:
		return "INT8"
	case Uint8:
		return "UINT8"
	case Int16:
		return "INT16"
	case Uint16:
		return "UINT16"
	case Int32:
		return "INT32"
	case Uint32:
		return "UINT32"
	case Int64:
		return "INT64"
	case Uint64:
		return "UINT64"
	case Float32:
		return "FLOAT32"
	case Float64:
		return "FLOAT64"
	case Char:
		return "CHAR"
	case Byte:
		return "BLOB"
	case StringASCII:
		return "STRING_ASCII"
	case Boolean:
		return "BOOL"
	case DatetimeSecond, DatetimeMillisecond, DatetimeMicrosecond, DatetimeNanosecond:
		return "DATETIME"
	case TimeSecond, TimeMillisecond, TimeMicrosecond, TimeNanosecond:
		return "TIME"
	default:
		return "UNKNOWN"
	}
}
