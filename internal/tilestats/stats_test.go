package tilestats

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/stretchr/testify/require"
)

func i64b(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

// TestNullableRollup checks two 100-cell tiles, one entirely null,
// the other holding [0..100).
func TestNullableRollup(t *testing.T) {
	tile0 := NewGenerator(shared.Int64, 8)
	for i := 0; i < 100; i++ {
		tile0.AddFixed(i64b(int64(i)), true)
	}
	res0 := tile0.FixedResult(100)
	require.False(t, res0.HasValues)
	require.EqualValues(t, 100, res0.NullCount)

	tile1 := NewGenerator(shared.Int64, 8)
	var want int64
	for i := 0; i < 100; i++ {
		tile1.AddFixed(i64b(int64(i)), false)
		want += int64(i)
	}
	res1 := tile1.FixedResult(100)
	require.True(t, res1.HasValues)
	require.EqualValues(t, 0, binary.LittleEndian.Uint64(res1.Min))
	require.EqualValues(t, 99, binary.LittleEndian.Uint64(res1.Max))
	require.EqualValues(t, want, int64(binary.LittleEndian.Uint64(res1.Sum[:])))
	require.EqualValues(t, 4950, want)
}

// TestSaturatingSum checks that a sum clamps at the datatype's max
// instead of wrapping around on overflow.
func TestSaturatingSum(t *testing.T) {
	g := NewGenerator(shared.Int64, 8)
	g.AddFixed(i64b(math.MaxInt64), false)
	g.AddFixed(i64b(1), false)
	res := g.FixedResult(2)
	require.True(t, res.HasValues)
	require.EqualValues(t, math.MaxInt64, int64(binary.LittleEndian.Uint64(res.Sum[:])))
}

func TestVarRollupTieBreaks(t *testing.T) {
	g := NewGenerator(shared.StringASCII, 0)
	g.AddVar([]byte("bb"), false)
	g.AddVar([]byte("b"), false)
	g.AddVar([]byte("a"), false)
	res := g.VarResult(3)
	require.True(t, res.HasValues)
	require.Equal(t, "a", string(res.Min))
	require.Equal(t, "bb", string(res.Max))
}

func TestBooleanHasNoMinMaxSum(t *testing.T) {
	g := NewGenerator(shared.Boolean, 1)
	g.AddFixed([]byte{1}, false)
	res := g.FixedResult(1)
	require.True(t, res.HasValues)
	require.Nil(t, res.Min)
	require.Nil(t, res.Max)
}
