// Package wire provides the length-prefixed little-endian primitives
// every on-disk section (footer, R-tree, tile headers, stats) is built
// from, so encoding isn't re-derived by hand at each call site.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/mattdurham/fragcore/internal/errs"
)

// Cursor is a bounds-checked read position over a byte slice.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps buf for sequential reads starting at offset 0.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos returns the current read offset.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

func (c *Cursor) need(n int) error {
	if n < 0 || c.Remaining() < n {
		return errs.New(errs.Truncated, "wire: need %d bytes, have %d", n, c.Remaining())
	}
	return nil
}

// GetUint8 reads one byte.
func (c *Cursor) GetUint8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

// GetUint16 reads a little-endian uint16.
func (c *Cursor) GetUint16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

// GetUint32 reads a little-endian uint32.
func (c *Cursor) GetUint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// GetUint64 reads a little-endian uint64.
func (c *Cursor) GetUint64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

// GetFloat64 reads a little-endian IEEE-754 double.
func (c *Cursor) GetFloat64() (float64, error) {
	v, err := c.GetUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// GetBytes reads n raw bytes; the returned slice aliases the cursor's
// backing buffer and must not be mutated by the caller.
func (c *Cursor) GetBytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	v := c.buf[c.pos : c.pos+n]
	c.pos += n
	return v, nil
}

// GetVarBytes reads a uint32 length prefix followed by that many bytes.
func (c *Cursor) GetVarBytes(maxLen uint32) ([]byte, error) {
	n, err := c.GetUint32()
	if err != nil {
		return nil, err
	}
	if n > maxLen {
		return nil, errs.New(errs.Corrupt, "wire: var bytes length %d exceeds limit %d", n, maxLen)
	}
	return c.GetBytes(int(n))
}

// GetVarString reads a uint32 length prefix followed by that many bytes,
// returned as a string copy (does not alias the cursor's buffer).
func (c *Cursor) GetVarString(maxLen uint32) (string, error) {
	b, err := c.GetVarBytes(maxLen)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Encoder appends little-endian primitives to a growable buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with an empty buffer of the given
// initial capacity hint.
func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated buffer.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int { return len(e.buf) }

// PutUint8 appends one byte.
func (e *Encoder) PutUint8(v uint8) { e.buf = append(e.buf, v) }

// PutUint16 appends a little-endian uint16.
func (e *Encoder) PutUint16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

// PutUint32 appends a little-endian uint32.
func (e *Encoder) PutUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// PutUint64 appends a little-endian uint64.
func (e *Encoder) PutUint64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// PutFloat64 appends a little-endian IEEE-754 double.
func (e *Encoder) PutFloat64(v float64) {
	e.PutUint64(math.Float64bits(v))
}

// PutBytes appends raw bytes with no length prefix.
func (e *Encoder) PutBytes(v []byte) { e.buf = append(e.buf, v...) }

// PutVarBytes appends a uint32 length prefix followed by v.
func (e *Encoder) PutVarBytes(v []byte) {
	e.PutUint32(uint32(len(v)))
	e.PutBytes(v)
}

// PutVarString appends a uint32 length prefix followed by s's bytes.
func (e *Encoder) PutVarString(s string) {
	e.PutVarBytes([]byte(s))
}
