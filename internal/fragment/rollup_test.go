package fragment

import (
	"context"
	"math"
	"testing"

	"github.com/mattdurham/fragcore/internal/memtracker"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/tilestats"
	"github.com/stretchr/testify/require"
)

// newBareMetadata builds a dense, 2-tile Metadata (tid 0 and 1 only)
// against newDenseSchema without writing anything to storage, for
// tests that only need ComputeFragmentRollup's in-memory reduction.
func newBareMetadata(t *testing.T) *Metadata {
	t.Helper()
	sch := newDenseSchema(t)
	m, err := New(nil, memtracker.New(0), sch, "bare", 0, 0, true, false, false)
	require.NoError(t, err)
	require.NoError(t, m.Init(rangeidx.NDRange{mustFixed(t, 0, 19)}))
	return m
}

// TestRollupSkipsAllNullTile mirrors ComputeFragmentRollup excluding a
// tile whose null_count equals its cell count from min/max/sum, while
// still folding its null_count into the fragment total.
func TestRollupSkipsAllNullTile(t *testing.T) {
	m := newBareMetadata(t)

	allNullRes := tilestats.Fixed{HasValues: false, NullCount: cellsPerTile}
	require.NoError(t, m.AddTileStats("a", 0, allNullRes))

	g := tilestats.NewGenerator(m.fields[0].Datatype, 8)
	for _, v := range []int64{5, 6, 7, 8, 9, 10, 11, 12, 13, 14} {
		g.AddFixed(i64b(v), false)
	}
	require.NoError(t, m.AddTileStats("a", 1, g.FixedResult(cellsPerTile)))

	require.NoError(t, m.ComputeFragmentRollup(context.Background()))

	aIdx, err := m.fieldIndex("a")
	require.NoError(t, err)
	r := m.rollups[aIdx]
	require.Equal(t, i64b(5), r.Min)
	require.Equal(t, i64b(14), r.Max)
	require.Equal(t, int64(95), asI64(r.Sum))
	require.Equal(t, uint64(cellsPerTile), r.NullCount)
}

// TestRollupSaturatesOnOverflow mirrors the fragment-level sum
// reduction clamping at math.MaxInt64 instead of wrapping, mirroring
// tilestats.Generator's own per-tile saturating-add rule.
func TestRollupSaturatesOnOverflow(t *testing.T) {
	m := newBareMetadata(t)

	sum0 := [8]byte{}
	putLE(sum0[:], uint64(math.MaxInt64-5))
	require.NoError(t, m.AddTileStats("a", 0, tilestats.Fixed{
		HasValues: true,
		Min:       i64b(math.MaxInt64 - 5),
		Max:       i64b(math.MaxInt64 - 5),
		Sum:       sum0,
		NullCount: cellsPerTile - 1,
	}))

	sum1 := [8]byte{}
	putLE(sum1[:], uint64(10))
	require.NoError(t, m.AddTileStats("a", 1, tilestats.Fixed{
		HasValues: true,
		Min:       i64b(10),
		Max:       i64b(10),
		Sum:       sum1,
		NullCount: cellsPerTile - 1,
	}))

	require.NoError(t, m.ComputeFragmentRollup(context.Background()))

	aIdx, err := m.fieldIndex("a")
	require.NoError(t, err)
	require.Equal(t, int64(math.MaxInt64), asI64(m.rollups[aIdx].Sum))
}

// TestRollupAllTilesNullYieldsNoValues mirrors a fragment whose every
// tile for a field is entirely null: the fragment-level rollup carries
// no min/max/sum, only the accumulated null_count.
func TestRollupAllTilesNullYieldsNoValues(t *testing.T) {
	m := newBareMetadata(t)
	require.NoError(t, m.AddTileStats("a", 0, tilestats.Fixed{HasValues: false, NullCount: cellsPerTile}))
	require.NoError(t, m.AddTileStats("a", 1, tilestats.Fixed{HasValues: false, NullCount: cellsPerTile}))

	require.NoError(t, m.ComputeFragmentRollup(context.Background()))

	aIdx, err := m.fieldIndex("a")
	require.NoError(t, err)
	r := m.rollups[aIdx]
	require.Nil(t, r.Min)
	require.Nil(t, r.Max)
	require.Equal(t, uint64(2*cellsPerTile), r.NullCount)
}
