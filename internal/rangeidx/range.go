// Package rangeidx implements Range and NDRange, the per-dimension
// and per-fragment bounding-box primitives everything else in this
// module (dimension arithmetic, the R-tree, fragment non-empty
// domains) is built on top of.
package rangeidx

import (
	"bytes"

	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/wire"
)

// Range is a closed interval [Start, End] over one dimension's domain,
// stored as raw bytes so it can hold any Datatype without a type
// parameter leaking into every caller. Fixed-size datatypes store
// 2*coordSize bytes; variable-length (string) datatypes store a
// (start_size, end_size) header followed by the two byte strings.
type Range struct {
	data   []byte
	varLen bool
}

// NewFixed builds a Range over a fixed-width datatype from raw
// start/end byte encodings, each coordSize bytes long.
func NewFixed(start, end []byte, coordSize int) (Range, error) {
	if len(start) != coordSize || len(end) != coordSize {
		return Range{}, errs.New(errs.UsageError, "rangeidx: fixed range needs %d-byte bounds, got %d/%d", coordSize, len(start), len(end))
	}
	buf := make([]byte, 0, 2*coordSize)
	buf = append(buf, start...)
	buf = append(buf, end...)
	return Range{data: buf}, nil
}

// NewVar builds a Range over a variable-length datatype (e.g. string
// dimensions) from arbitrary-length start/end byte strings.
func NewVar(start, end []byte) Range {
	enc := wire.NewEncoder(8 + len(start) + len(end))
	enc.PutUint32(uint32(len(start)))
	enc.PutUint32(uint32(len(end)))
	enc.PutBytes(start)
	enc.PutBytes(end)
	return Range{data: enc.Bytes(), varLen: true}
}

// IsVar reports whether r is a variable-length range.
func (r Range) IsVar() bool { return r.varLen }

// IsEmpty reports whether r holds no data (the zero Range).
func (r Range) IsEmpty() bool { return len(r.data) == 0 }

// StartEnd returns r's start and end byte encodings.
func (r Range) StartEnd() (start, end []byte, err error) {
	if r.varLen {
		c := wire.NewCursor(r.data)
		startLen, err := c.GetUint32()
		if err != nil {
			return nil, nil, err
		}
		endLen, err := c.GetUint32()
		if err != nil {
			return nil, nil, err
		}
		s, err := c.GetBytes(int(startLen))
		if err != nil {
			return nil, nil, err
		}
		e, err := c.GetBytes(int(endLen))
		if err != nil {
			return nil, nil, err
		}
		return s, e, nil
	}
	half := len(r.data) / 2
	return r.data[:half], r.data[half:], nil
}

// Size returns the number of bytes r occupies when serialized,
// including its own length prefix for variable-length ranges.
func (r Range) Size() int {
	if r.varLen {
		return 4 + len(r.data) // one extra u32 total-length prefix on the wire
	}
	return len(r.data)
}

// Encode appends r's on-wire encoding to enc. Fixed ranges are written
// as raw bytes (the caller already knows coordSize from the
// dimension); variable ranges are prefixed with a total length so a
// reader can skip over one without decoding it.
func (r Range) Encode(enc *wire.Encoder) {
	if r.varLen {
		enc.PutUint32(uint32(len(r.data)))
	}
	enc.PutBytes(r.data)
}

// DecodeFixed reads a fixed-width Range of 2*coordSize bytes from c.
func DecodeFixed(c *wire.Cursor, coordSize int) (Range, error) {
	b, err := c.GetBytes(2 * coordSize)
	if err != nil {
		return Range{}, err
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	return Range{data: buf}, nil
}

// DecodeVar reads a length-prefixed variable-width Range from c.
func DecodeVar(c *wire.Cursor) (Range, error) {
	n, err := c.GetUint32()
	if err != nil {
		return Range{}, err
	}
	b, err := c.GetBytes(int(n))
	if err != nil {
		return Range{}, err
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	return Range{data: buf, varLen: true}, nil
}

// Equal reports whether r and other encode the same bounds.
func (r Range) Equal(other Range) bool {
	return r.varLen == other.varLen && bytes.Equal(r.data, other.data)
}

// NDRange is a fragment's (or a tile's) bounding box: one Range per dimension.
type NDRange []Range

// Size returns the total serialized byte size of all dimensions.
func (nd NDRange) Size() int {
	n := 0
	for _, r := range nd {
		n += r.Size()
	}
	return n
}

// Empty reports whether nd has zero dimensions or any dimension's
// range is unset.
func (nd NDRange) Empty() bool {
	if len(nd) == 0 {
		return true
	}
	for _, r := range nd {
		if r.IsEmpty() {
			return true
		}
	}
	return false
}
