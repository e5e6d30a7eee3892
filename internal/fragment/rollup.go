package fragment

import (
	"bytes"
	"context"
	"math"
)

// ComputeFragmentRollup reduces every field's per-tile min/max/sum/
// null_count arrays into one fragment-level rollup, ignoring tiles
// that are entirely null. Per-field reductions run concurrently on
// the fragment's compute pool.
func (m *Metadata) ComputeFragmentRollup(ctx context.Context) error {
	fns := make([]func(context.Context) error, len(m.fields))
	for idx := range m.fields {
		i := idx
		fns[i] = func(context.Context) error {
			r, err := m.reduceField(i)
			if err != nil {
				return err
			}
			m.rollups[i] = r
			return nil
		}
	}
	if m.pool == nil {
		for _, fn := range fns {
			if err := fn(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	return m.pool.Go(ctx, fns...)
}

func (m *Metadata) reduceField(i int) (rollup, error) {
	f := m.fields[i]
	if f.isVar() {
		return m.reduceVarField(m.varStats[i])
	}
	return m.reduceFixedField(f, m.fixedStats[i])
}

// allNull reports whether tile k of this fragment is entirely null,
// i.e. its null_count equals its full cell count — the condition
// ComputeFragmentRollup uses to exclude a tile's Min/Max/Sum from the
// fragment-level reduction.
func (m *Metadata) allNull(k int, nullCount uint64) (bool, error) {
	cells, err := m.cellNum(k)
	if err != nil {
		return false, err
	}
	return nullCount >= cells, nil
}

// reduceFixedField folds fixed.Min/Max/Sum across every tile that
// isn't entirely null.
func (m *Metadata) reduceFixedField(f field, stats perFieldFixedStats) (rollup, error) {
	var r rollup
	var sumI64 int64
	var sumU64 uint64
	var sumF64 float64
	seenAny := false
	for k, nc := range stats.NullCount {
		r.NullCount += nc
		allNull, err := m.allNull(k, nc)
		if err != nil {
			return rollup{}, err
		}
		if allNull {
			continue
		}
		minV, maxV := stats.Min[k], stats.Max[k]
		if !seenAny || lessFixed(f, minV, r.Min) {
			r.Min = append([]byte(nil), minV...)
		}
		if !seenAny || lessFixed(f, r.Max, maxV) {
			r.Max = append([]byte(nil), maxV...)
		}
		seenAny = true
		if f.Datatype.HasSumMetadata() && k < len(stats.Sum) {
			switch {
			case f.Datatype.IsSigned():
				sumI64 = saturatingAddI64(sumI64, int64(decodeLE(stats.Sum[k][:])))
			case f.Datatype.IsInteger():
				sumU64 = saturatingAddU64(sumU64, decodeLE(stats.Sum[k][:]))
			default:
				sumF64 += math.Float64frombits(decodeLE(stats.Sum[k][:]))
			}
		}
	}
	if f.Datatype.HasSumMetadata() {
		switch {
		case f.Datatype.IsSigned():
			putLE(r.Sum[:], uint64(sumI64))
		case f.Datatype.IsInteger():
			putLE(r.Sum[:], sumU64)
		default:
			putLE(r.Sum[:], math.Float64bits(sumF64))
		}
	}
	return r, nil
}

// reduceVarField folds var.Min/Max lexicographically across every
// non-all-null tile, shorter-is-smaller for min and longer-is-greater
// for max, matching tilestats.Generator's tie-break rule.
func (m *Metadata) reduceVarField(stats perFieldVarStats) (rollup, error) {
	var r rollup
	seenAny := false
	for k, nc := range stats.NullCount {
		r.NullCount += nc
		allNull, err := m.allNull(k, nc)
		if err != nil {
			return rollup{}, err
		}
		if allNull {
			continue
		}
		minV, maxV := stats.Min[k], stats.Max[k]
		if !seenAny || lessVar(minV, r.Min) {
			r.Min = append([]byte(nil), minV...)
		}
		if !seenAny || lessVar(r.Max, maxV) {
			r.Max = append([]byte(nil), maxV...)
		}
		seenAny = true
	}
	return r, nil
}

// lessFixed orders two fixed-size encoded values by their native
// numeric value, the same rule tilestats.Generator.lessFixed applies
// per tile: raw byte comparison of little-endian integers does not
// match numeric order, and gets two's-complement negatives backwards.
func lessFixed(f field, a, b []byte) bool {
	switch {
	case f.Datatype.IsSigned():
		return decodeSignedLE(a) < decodeSignedLE(b)
	case f.Datatype.IsInteger():
		return decodeLE(a) < decodeLE(b)
	case f.Datatype.IsReal():
		return decodeRealLE(a) < decodeRealLE(b)
	default:
		return bytes.Compare(a, b) < 0
	}
}

// decodeSignedLE decodes a little-endian integer of width len(b) into
// a sign-extended int64.
func decodeSignedLE(b []byte) int64 {
	u := decodeLE(b)
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

// decodeRealLE decodes a little-endian IEEE-754 float of width len(b).
func decodeRealLE(b []byte) float64 {
	u := decodeLE(b)
	if len(b) == 4 {
		return float64(math.Float32frombits(uint32(u)))
	}
	return math.Float64frombits(u)
}

// lessVar mirrors tilestats' lexicographic, shorter-wins-ties ordering.
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

func saturatingAddU64(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return math.MaxUint64
	}
	return sum
}

func decodeLE(b []byte) uint64 {
	var u uint64
	for i := len(b) - 1; i >= 0; i-- {
		u = u<<8 | uint64(b[i])
	}
	return u
}

func putLE(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}
