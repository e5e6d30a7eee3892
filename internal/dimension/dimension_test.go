package dimension

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/stretchr/testify/require"
)

func i64b(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func newS1Dim(t *testing.T) *Dimension {
	d, err := New("d", shared.Int64, i64b(0), i64b(9), i64b(5))
	require.NoError(t, err)
	return d
}

func TestTileIdxAndCoordBounds(t *testing.T) {
	d := newS1Dim(t)

	idx, err := d.TileIdx(i64b(3))
	require.NoError(t, err)
	require.EqualValues(t, 0, idx)

	idx, err = d.TileIdx(i64b(7))
	require.NoError(t, err)
	require.EqualValues(t, 1, idx)

	low, err := d.TileCoordLow(1)
	require.NoError(t, err)
	require.EqualValues(t, 5, int64(binary.LittleEndian.Uint64(low)))

	high, err := d.TileCoordHigh(0)
	require.NoError(t, err)
	require.EqualValues(t, 4, int64(binary.LittleEndian.Uint64(high)))
}

func TestTileNumS1(t *testing.T) {
	d := newS1Dim(t)
	n, err := d.TileNum(d.Domain)
	require.NoError(t, err)
	require.EqualValues(t, 2, n) // ceil(10/5) = 2
}

func TestOverlapRatioS1(t *testing.T) {
	d := newS1Dim(t)
	query, err := rangeidx.NewFixed(i64b(3), i64b(7), 8)
	require.NoError(t, err)

	tile0High, _ := d.TileCoordHigh(0)
	tile0Low, _ := d.TileCoordLow(0)
	tile0, err := rangeidx.NewFixed(tile0Low, tile0High, 8)
	require.NoError(t, err)

	ratio, err := d.OverlapRatio(tile0, query)
	require.NoError(t, err)
	require.InDelta(t, 2.0/5.0, ratio, 1e-9)

	tile1Low, _ := d.TileCoordLow(1)
	tile1High, _ := d.TileCoordHigh(1)
	tile1, err := rangeidx.NewFixed(tile1Low, tile1High, 8)
	require.NoError(t, err)

	ratio, err = d.OverlapRatio(tile1, query)
	require.NoError(t, err)
	require.InDelta(t, 3.0/5.0, ratio, 1e-9)
}

func TestExpandToTileAndCoincides(t *testing.T) {
	d := newS1Dim(t)
	r, err := rangeidx.NewFixed(i64b(3), i64b(7), 8)
	require.NoError(t, err)

	expanded, err := d.ExpandToTile(r)
	require.NoError(t, err)
	lo, hi, err := expanded.StartEnd()
	require.NoError(t, err)
	require.EqualValues(t, 0, int64(binary.LittleEndian.Uint64(lo)))
	require.EqualValues(t, 9, int64(binary.LittleEndian.Uint64(hi)))

	ok, err := d.CoincidesWithTiles(expanded)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.CoincidesWithTiles(r)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHilbertRoundTripMonotonic(t *testing.T) {
	d, err := New("d", shared.Float64, make([]byte, 8), floatBytes(100), nil)
	require.NoError(t, err)

	b1, err := d.MapToUint64(floatBytes(10), 16, 0xFFFF)
	require.NoError(t, err)
	b2, err := d.MapToUint64(floatBytes(50), 16, 0xFFFF)
	require.NoError(t, err)
	require.Less(t, b1, b2)

	coord, err := d.MapFromUint64(b2, 0xFFFF)
	require.NoError(t, err)
	require.NotNil(t, coord)
	require.InDelta(t, 50.0, math.Float64frombits(binary.LittleEndian.Uint64(coord)), 100.0/0xFFFF)
}

func floatBytes(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}
