package fragment

import (
	"testing"

	"github.com/mattdurham/fragcore/internal/dimension"
	"github.com/mattdurham/fragcore/internal/generictile"
	"github.com/mattdurham/fragcore/internal/memtracker"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/schema"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/stretchr/testify/require"
)

// consolidatedBlob packs payload as the sole entry of a would-be
// multi-fragment consolidated footer blob, the shape readFooterTile's
// Consolidated path expects.
func consolidatedBlob(t *testing.T, payload []byte) *generictile.Tile {
	t.Helper()
	buf, _, err := generictile.WriteGeneric(nil, generictile.Tile{Data: payload}, nil)
	require.NoError(t, err)
	return &generictile.Tile{Data: buf}
}

func newSparseSchema(t *testing.T) *schema.ArraySchema {
	t.Helper()
	dim, err := dimension.New("x", shared.Int64, i64b(0), i64b(9), i64b(5))
	require.NoError(t, err)
	dom := dimension.NewDomain(false, dim)
	sch := &schema.ArraySchema{
		Name:   "sparse1",
		Dense:  false,
		Domain: dom,
		Attributes: []schema.Attribute{
			{Name: "a", Datatype: shared.Int64, CellValNum: 1},
		},
		Capacity:  100,
		CellOrder: schema.RowMajor,
		TileOrder: schema.RowMajor,
	}
	require.NoError(t, sch.Validate())
	return sch
}

// TestSparseGetTileOverlapViaRTree mirrors GetTileOverlap delegating
// straight to the sparse fragment's R-tree for pruning.
func TestSparseGetTileOverlapViaRTree(t *testing.T) {
	store := newLocalStore(t)
	tracker := memtracker.New(0)
	sch := newSparseSchema(t)
	m, err := New(nil, tracker, sch, "sparse1", 0, 0, false, false, false)
	require.NoError(t, err)
	require.NoError(t, m.Init(rangeidx.NDRange{mustFixed(t, 0, 9)}))

	leaves := []rangeidx.NDRange{
		{mustFixed(t, 0, 4)},
		{mustFixed(t, 5, 9)},
	}
	require.NoError(t, m.BuildRTree(leaves))
	m.SparseTileNum = uint64(len(leaves))
	m.LastTileCellNum = 50
	require.NoError(t, m.Store(store, nil))

	loaded, err := Load(LoadOptions{
		Store:   store,
		Tracker: tracker,
		URI:     "sparse1",
		Schemas: map[string]*schema.ArraySchema{sch.Name: sch},
	})
	require.NoError(t, err)
	require.False(t, loaded.Dense)
	require.Equal(t, uint64(2), loaded.SparseTileNum)
	num, err := loaded.TileNum()
	require.NoError(t, err)
	require.Equal(t, uint64(2), num)

	require.NoError(t, loaded.loadRTree())
	overlap, err := loaded.GetTileOverlap(rangeidx.NDRange{mustFixed(t, 3, 7)}, nil)
	require.NoError(t, err)
	require.Empty(t, overlap.TileRanges)
	byID := map[uint64]float64{}
	for _, tc := range overlap.Tiles {
		byID[tc.TileID] = tc.Coverage
	}
	require.InDelta(t, 2.0/5.0, byID[0], 1e-9)
	require.InDelta(t, 3.0/5.0, byID[1], 1e-9)

	_, err = loaded.ComputeOverlappingTileIDs(rangeidx.NDRange{mustFixed(t, 3, 7)})
	require.ErrorContains(t, err, "dense")
}

// TestConsolidatedFooterLoadsFromSeparateBlob checks the
// consolidated-metadata fast path: the footer is supplied out of band
// as a (tile, offset) pair, while every other section still resolves
// from the fragment's own metadata file.
func TestConsolidatedFooterLoadsFromSeparateBlob(t *testing.T) {
	store := newLocalStore(t)
	tracker := memtracker.New(0)
	sch := newDenseSchema(t)
	written := writeDenseFragment(t, store, tracker, nil, "frag-consolidated")

	footerPayload := written.encodeFooterPayload(written.sec)
	blob := consolidatedBlob(t, footerPayload)

	loaded, err := Load(LoadOptions{
		Store:              store,
		Tracker:            tracker,
		URI:                "frag-consolidated",
		Schemas:            map[string]*schema.ArraySchema{sch.Name: sch},
		Consolidated:       blob,
		ConsolidatedOffset: 0,
	})
	require.NoError(t, err)
	require.Equal(t, written.Version, loaded.Version)
	require.Equal(t, written.sec, loaded.sec)

	require.NoError(t, loaded.loadTileOffsets(0))
	off, err := loaded.FileOffset("a", 4)
	require.NoError(t, err)
	require.Equal(t, uint64(4*80), off)

	require.NoError(t, loaded.loadStats())
	sum, err := loaded.GetTileSum("a", 2)
	require.NoError(t, err)
	require.Equal(t, int64(100*2+45), asI64(sum))
}
