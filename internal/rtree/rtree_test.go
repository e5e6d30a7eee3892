package rtree

import (
	"encoding/binary"
	"testing"

	"github.com/mattdurham/fragcore/internal/dimension"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/stretchr/testify/require"
)

func i64b(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func fixedRange(t *testing.T, lo, hi int64) rangeidx.Range {
	r, err := rangeidx.NewFixed(i64b(lo), i64b(hi), 8)
	require.NoError(t, err)
	return r
}

func TestGetTileOverlapDense1D(t *testing.T) {
	d, err := dimension.New("d", shared.Int64, i64b(0), i64b(9), i64b(5))
	require.NoError(t, err)
	dom := dimension.NewDomain(false, d)

	tree := New(16, dom)
	tree.SetLeafNum(2)
	require.NoError(t, tree.SetLeaf(0, rangeidx.NDRange{fixedRange(t, 0, 4)}))
	require.NoError(t, tree.SetLeaf(1, rangeidx.NDRange{fixedRange(t, 5, 9)}))
	require.NoError(t, tree.BuildTree())

	query := rangeidx.NDRange{fixedRange(t, 3, 7)}
	overlap, err := tree.GetTileOverlap(query, nil)
	require.NoError(t, err)
	require.Empty(t, overlap.TileRanges)
	require.Len(t, overlap.Tiles, 2)

	byID := map[uint64]float64{}
	for _, tc := range overlap.Tiles {
		byID[tc.TileID] = tc.Coverage
	}
	require.InDelta(t, 2.0/5.0, byID[0], 1e-9)
	require.InDelta(t, 3.0/5.0, byID[1], 1e-9)
}

func TestGetTileOverlapFullyCoveredCollapses(t *testing.T) {
	d, err := dimension.New("d", shared.Int64, i64b(0), i64b(9), i64b(5))
	require.NoError(t, err)
	dom := dimension.NewDomain(false, d)

	tree := New(16, dom)
	tree.SetLeafNum(2)
	require.NoError(t, tree.SetLeaf(0, rangeidx.NDRange{fixedRange(t, 0, 4)}))
	require.NoError(t, tree.SetLeaf(1, rangeidx.NDRange{fixedRange(t, 5, 9)}))
	require.NoError(t, tree.BuildTree())

	query := rangeidx.NDRange{fixedRange(t, 0, 9)}
	overlap, err := tree.GetTileOverlap(query, nil)
	require.NoError(t, err)
	require.Empty(t, overlap.Tiles)
	require.Equal(t, [][2]uint64{{0, 1}}, overlap.TileRanges)
}

func TestComputeTileBitmap(t *testing.T) {
	d, err := dimension.New("d", shared.Int64, i64b(0), i64b(9), i64b(5))
	require.NoError(t, err)
	dom := dimension.NewDomain(false, d)

	tree := New(16, dom)
	tree.SetLeafNum(2)
	require.NoError(t, tree.SetLeaf(0, rangeidx.NDRange{fixedRange(t, 0, 4)}))
	require.NoError(t, tree.SetLeaf(1, rangeidx.NDRange{fixedRange(t, 5, 9)}))
	require.NoError(t, tree.BuildTree())

	bitmap := make([]byte, 2)
	require.NoError(t, tree.ComputeTileBitmap(fixedRange(t, 6, 8), 0, bitmap))
	require.Equal(t, []byte{0, 1}, bitmap)
}
