// Package tilestats computes per-tile (min, max, sum, null_count)
// summaries, using a per-type accumulator-struct pattern
// (accumulate*Stats/encode*Stats) with sum and null_count
// accumulation and saturating-sum semantics.
package tilestats

import (
	"bytes"
	"math"

	"github.com/mattdurham/fragcore/internal/shared"
)

// Fixed holds the rollup for a fixed-size (non-var) tile.
type Fixed struct {
	HasValues bool
	Min       []byte
	Max       []byte
	Sum       [8]byte // reinterpreted as int64/uint64/float64 per Datatype
	NullCount uint64
}

// Var holds the rollup for a variable-length (string) tile; there is
// no sum field, since a variable-length value has no numeric meaning
// to accumulate.
type Var struct {
	HasValues bool
	Min       []byte
	Max       []byte
	NullCount uint64
}

// Generator accumulates a tile's rollup cell by cell as the writer
// streams values, then emits the final Fixed/Var result.
type Generator struct {
	dt       shared.Datatype
	cellSize int

	hasMinMax bool
	hasSum    bool

	fixedMin, fixedMax []byte
	sumI64             int64
	sumU64             uint64
	sumF64             float64
	nullCount          uint64
	seenAny            bool

	varMin, varMax []byte
}

// NewGenerator returns a Generator for a tile of the given datatype
// and per-cell byte width (cellValNum * dt.ByteSize() for fixed
// fields; ignored for var fields, which always call AddVar).
func NewGenerator(dt shared.Datatype, cellSize int) *Generator {
	return &Generator{
		dt:        dt,
		cellSize:  cellSize,
		hasMinMax: dt.HasMinMaxMetadata(),
		hasSum:    dt.HasSumMetadata(),
	}
}

// AddFixed folds one cell's fixed-size value into the rollup. isNull
// must be true for a null cell under a nullable attribute; null cells
// never affect min/max/sum.
func (g *Generator) AddFixed(value []byte, isNull bool) {
	if isNull {
		g.nullCount++
		return
	}
	g.seenAny = true
	if g.hasMinMax {
		if g.fixedMin == nil || g.lessFixed(value, g.fixedMin) {
			g.fixedMin = append([]byte(nil), value...)
		}
		if g.fixedMax == nil || g.lessFixed(g.fixedMax, value) {
			g.fixedMax = append([]byte(nil), value...)
		}
	}
	if g.hasSum {
		g.accumulateSum(value)
	}
}

// lessFixed orders two fixed-size encoded values by their native
// numeric value rather than their little-endian byte representation:
// raw byte comparison puts LE-encoded 256 ([0,1,0,...]) before 1
// ([1,0,0,...]) and gets two's-complement negatives backwards.
func (g *Generator) lessFixed(a, b []byte) bool {
	switch {
	case g.dt.IsSigned():
		return decodeIntLE(a, true) < decodeIntLE(b, true)
	case g.dt.IsInteger():
		return uint64(decodeIntLE(a, false)) < uint64(decodeIntLE(b, false))
	case g.dt.IsReal():
		return decodeFloatLE(a) < decodeFloatLE(b)
	default:
		return bytes.Compare(a, b) < 0
	}
}

// AddVar folds one cell's variable-length value into the rollup,
// using lexicographic order with shorter-is-smaller tie-break for min
// and longer-is-greater tie-break for max.
func (g *Generator) AddVar(value []byte, isNull bool) {
	if isNull {
		g.nullCount++
		return
	}
	g.seenAny = true
	if g.varMin == nil || lessVar(value, g.varMin) {
		g.varMin = append([]byte(nil), value...)
	}
	if g.varMax == nil || lessVar(g.varMax, value) {
		g.varMax = append([]byte(nil), value...)
	}
}

// lessVar orders byte strings lexicographically, with the shorter
// string winning ties on a shared prefix (used for min) — callers
// invert the argument order to get the "longer wins" rule for max.
func lessVar(a, b []byte) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	c := bytes.Compare(a[:n], b[:n])
	if c != 0 {
		return c < 0
	}
	return len(a) < len(b)
}

func (g *Generator) accumulateSum(value []byte) {
	switch {
	case g.dt.IsSigned():
		v := decodeIntLE(value, true)
		g.sumI64 = saturatingAddI64(g.sumI64, v)
	case g.dt.IsInteger():
		v := uint64(decodeIntLE(value, false))
		g.sumU64 = saturatingAddU64(g.sumU64, v)
	case g.dt.IsReal():
		v := decodeFloatLE(value)
		g.sumF64 += v
	}
}

// decodeIntLE decodes a little-endian integer of width len(b) into an
// int64 (sign-extending if signed) or its unsigned bit pattern.
func decodeIntLE(b []byte, signed bool) int64 {
	var u uint64
	for i := len(b) - 1; i >= 0; i-- {
		u = u<<8 | uint64(b[i])
	}
	if !signed {
		return int64(u)
	}
	switch len(b) {
	case 1:
		return int64(int8(u))
	case 2:
		return int64(int16(u))
	case 4:
		return int64(int32(u))
	default:
		return int64(u)
	}
}

func decodeFloatLE(b []byte) float64 {
	var u uint64
	for i := len(b) - 1; i >= 0; i-- {
		u = u<<8 | uint64(b[i])
	}
	if len(b) == 4 {
		return float64(math.Float32frombits(uint32(u)))
	}
	return math.Float64frombits(u)
}

// saturatingAddI64 adds b to a, clamping to the int64 range on overflow.
func saturatingAddI64(a, b int64) int64 {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		if b > 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return sum
}

// saturatingAddU64 adds b to a, clamping to MaxUint64 on overflow.
func saturatingAddU64(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return math.MaxUint64
	}
	return sum
}

// FixedResult returns the finalized fixed-field rollup. A tile whose
// null count equals its cell count contributes neither min/max nor
// sum (HasValues stays false).
func (g *Generator) FixedResult(cellCount uint64) Fixed {
	res := Fixed{NullCount: g.nullCount, HasValues: g.seenAny && g.nullCount < cellCount}
	if !res.HasValues {
		return res
	}
	res.Min = g.fixedMin
	res.Max = g.fixedMax
	switch {
	case g.dt.IsSigned():
		putIntLE(res.Sum[:], uint64(g.sumI64))
	case g.dt.IsInteger():
		putIntLE(res.Sum[:], g.sumU64)
	case g.dt.IsReal():
		var buf [8]byte
		putIntLE(buf[:], math.Float64bits(g.sumF64))
		res.Sum = buf
	}
	return res
}

func putIntLE(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}

// VarResult returns the finalized variable-length rollup.
func (g *Generator) VarResult(cellCount uint64) Var {
	res := Var{NullCount: g.nullCount, HasValues: g.seenAny && g.nullCount < cellCount}
	if !res.HasValues {
		return res
	}
	res.Min = g.varMin
	res.Max = g.varMax
	return res
}
