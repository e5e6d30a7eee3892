package fragment

import (
	"context"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/mattdurham/fragcore/internal/dimension"
	"github.com/mattdurham/fragcore/internal/memtracker"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/resources"
	"github.com/mattdurham/fragcore/internal/schema"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/mattdurham/fragcore/internal/tilestats"
	"github.com/mattdurham/fragcore/internal/vfs"
	"github.com/stretchr/testify/require"
)

func i64b(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func asI64(b [8]byte) int64 {
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// newDenseSchema is a 1-dimension (int64, domain [0,99], tile extent
// 10) dense schema with a fixed int64 attribute "a" and a var-length
// string attribute "s", 10 tiles of 10 cells each.
func newDenseSchema(t *testing.T) *schema.ArraySchema {
	t.Helper()
	dim, err := dimension.New("x", shared.Int64, i64b(0), i64b(99), i64b(10))
	require.NoError(t, err)
	dom := dimension.NewDomain(false, dim)
	sch := &schema.ArraySchema{
		Name:   "dense1",
		Dense:  true,
		Domain: dom,
		Attributes: []schema.Attribute{
			{Name: "a", Datatype: shared.Int64, CellValNum: 1},
			{Name: "s", Datatype: shared.StringASCII, CellValNum: shared.CellValNumVar},
		},
		CellOrder: schema.RowMajor,
		TileOrder: schema.RowMajor,
	}
	require.NoError(t, sch.Validate())
	return sch
}

const tilesPerFragment = 10
const cellsPerTile = 10

// writeDenseFragment builds and stores a fully-populated dense
// fragment over newDenseSchema: tile tid covers cells
// [tid*10, tid*10+9], attribute "a" holds the cell index as int64, and
// attribute "s" holds "rNN" zero-padded to two digits so lexicographic
// and numeric order coincide.
func writeDenseFragment(t *testing.T, store vfs.ObjectStore, tracker *memtracker.Tracker, pool *resources.Pool, uri string) *Metadata {
	t.Helper()
	sch := newDenseSchema(t)
	m, err := New(pool, tracker, sch, uri, 100, 200, true, false, false)
	require.NoError(t, err)

	nonEmpty := rangeidx.NDRange{mustFixed(t, 0, 99)}
	require.NoError(t, m.Init(nonEmpty))

	leaves := make([]rangeidx.NDRange, tilesPerFragment)
	for tid := 0; tid < tilesPerFragment; tid++ {
		lo, hi := int64(tid*cellsPerTile), int64(tid*cellsPerTile+cellsPerTile-1)
		leaves[tid] = rangeidx.NDRange{mustFixed(t, lo, hi)}

		g := tilestats.NewGenerator(shared.Int64, 8)
		for j := 0; j < cellsPerTile; j++ {
			g.AddFixed(i64b(lo+int64(j)), false)
		}
		res := g.FixedResult(cellsPerTile)
		require.NoError(t, m.SetTileOffset("a", uint64(tid), 80))
		require.NoError(t, m.AddTileStats("a", uint64(tid), res))

		vg := tilestats.NewGenerator(shared.StringASCII, 0)
		var varBytes int
		for j := 0; j < cellsPerTile; j++ {
			val := fmt.Sprintf("r%02d", lo+int64(j))
			vg.AddVar([]byte(val), false)
			varBytes += len(val)
		}
		vres := vg.VarResult(cellsPerTile)
		require.NoError(t, m.SetTileOffset("s", uint64(tid), 88))
		require.NoError(t, m.SetTileVarOffset("s", uint64(tid), uint64(varBytes)))
		require.NoError(t, m.SetTileVarSize("s", uint64(tid), uint64(varBytes)))
		require.NoError(t, m.SetTileMinVar("s", uint64(tid), vres.Min))
		require.NoError(t, m.SetTileMaxVar("s", uint64(tid), vres.Max))
		require.NoError(t, m.SetTileNullCount("s", uint64(tid), vres.NullCount))
	}
	require.NoError(t, m.FlipMinMaxVarOffsets("s"))
	require.NoError(t, m.BuildRTree(leaves))
	require.NoError(t, m.ComputeFragmentRollup(context.Background()))
	require.NoError(t, m.Store(store, nil))
	return m
}

func mustFixed(t *testing.T, lo, hi int64) rangeidx.Range {
	t.Helper()
	r, err := rangeidx.NewFixed(i64b(lo), i64b(hi), 8)
	require.NoError(t, err)
	return r
}

func newLocalStore(t *testing.T) vfs.ObjectStore {
	t.Helper()
	store, err := vfs.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

// TestWriteLoadRoundTrip mirrors the writer -> rollup -> store -> load
// -> lazy-load -> accessors path a consolidation or read path would
// take over a freshly-written dense fragment.
func TestWriteLoadRoundTrip(t *testing.T) {
	store := newLocalStore(t)
	tracker := memtracker.New(0)
	sch := newDenseSchema(t)
	written := writeDenseFragment(t, store, tracker, nil, "frag1")

	loaded, err := Load(LoadOptions{
		Store:   store,
		Tracker: tracker,
		URI:     "frag1",
		Schemas: map[string]*schema.ArraySchema{sch.Name: sch},
	})
	require.NoError(t, err)
	require.Equal(t, shared.CurrentVersion, loaded.Version)
	require.Equal(t, written.ArraySchemaName, loaded.ArraySchemaName)
	require.True(t, loaded.Dense)
	require.Equal(t, uint64(0), loaded.SparseTileNum)

	require.NoError(t, loaded.loadTileOffsets(0))
	off, err := loaded.FileOffset("a", 3)
	require.NoError(t, err)
	require.Equal(t, uint64(3*80), off)
	size, err := loaded.PersistedTileSize("a", 3)
	require.NoError(t, err)
	require.Equal(t, uint64(80), size)
	size, err = loaded.PersistedTileSize("a", tilesPerFragment-1)
	require.NoError(t, err)
	require.Equal(t, uint64(80), size)

	sIdx, err := loaded.fieldIndex("s")
	require.NoError(t, err)
	require.NoError(t, loaded.loadTileVar(sIdx))
	varSize, err := loaded.TileVarSize("s", 1)
	require.NoError(t, err)
	require.Equal(t, uint64(len("r10")+len("r11")+len("r12")+len("r13")+len("r14")+len("r15")+len("r16")+len("r17")+len("r18")+len("r19")), varSize)

	require.NoError(t, loaded.loadStats())
	sum, err := loaded.GetTileSum("a", 2)
	require.NoError(t, err)
	require.Equal(t, int64(100*2+45), asI64(sum))

	nc, err := loaded.GetTileNullCount("a", 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), nc)

	minS, err := loaded.GetTileMin("s", 0)
	require.NoError(t, err)
	require.Equal(t, "r00", string(minS))
	maxS, err := loaded.GetTileMax("s", 0)
	require.NoError(t, err)
	require.Equal(t, "r09", string(maxS))
	minS, err = loaded.GetTileMax("s", 1)
	require.NoError(t, err)
	require.Equal(t, "r19", string(minS))

	require.NoError(t, loaded.loadFragmentRollup())
	fragMin, err := loaded.fieldIndex("a")
	require.NoError(t, err)
	require.Equal(t, i64b(0), loaded.rollups[fragMin].Min)
	require.Equal(t, i64b(99), loaded.rollups[fragMin].Max)
	require.Equal(t, uint64(0), loaded.rollups[fragMin].NullCount)
	require.Equal(t, int64(4950), asI64(loaded.rollups[fragMin].Sum))

	require.NoError(t, loaded.loadRTree())
	cov, err := loaded.ComputeOverlappingTileIDsCov(rangeidx.NDRange{mustFixed(t, 15, 25)})
	require.NoError(t, err)
	require.Len(t, cov, 2)
	byID := map[uint64]float64{}
	for _, c := range cov {
		byID[c.TileID] = c.Coverage
	}
	require.InDelta(t, 0.5, byID[1], 1e-9)
	require.InDelta(t, 0.6, byID[2], 1e-9)

	ids, err := loaded.ComputeOverlappingTileIDs(rangeidx.NDRange{mustFixed(t, 15, 25)})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, ids)

	require.NoError(t, loaded.loadTileOffsets(1))
	sizes, err := loaded.AddMaxBufferSizes([]uint64{0, 1}, []string{"a", "s"})
	require.NoError(t, err)
	require.Equal(t, uint64(2*cellsPerTile*8), sizes["a"].Fixed)
	require.Equal(t, uint64(2*(cellsPerTile+1)*8), sizes["s"].Fixed)

	require.NoError(t, loaded.loadValidity())
	require.NoError(t, loaded.loadProcessedConditions())
}

// TestFreeReleasesThenReloads mirrors a lazily-loaded section being
// freed and successfully reloaded from disk.
func TestFreeReleasesThenReloads(t *testing.T) {
	store := newLocalStore(t)
	tracker := memtracker.New(0)
	sch := newDenseSchema(t)
	writeDenseFragment(t, store, tracker, nil, "frag2")

	loaded, err := Load(LoadOptions{
		Store:   store,
		Tracker: tracker,
		URI:     "frag2",
		Schemas: map[string]*schema.ArraySchema{sch.Name: sch},
	})
	require.NoError(t, err)

	require.NoError(t, loaded.loadRTree())
	used := tracker.UsedFor(shared.MemoryRTree)
	require.Greater(t, used, int64(0))
	loaded.freeRTree()
	require.Equal(t, int64(0), tracker.UsedFor(shared.MemoryRTree))
	require.False(t, loaded.loadedRTree)

	require.NoError(t, loaded.loadRTree())
	require.True(t, loaded.loadedRTree)
	_, err = loaded.GetTileOverlap(rangeidx.NDRange{mustFixed(t, 0, 9)}, nil)
	require.ErrorContains(t, err, "sparse")
}

// TestConcurrentRollupMatchesSequential mirrors ComputeFragmentRollup
// running on the fragment's compute pool instead of inline.
func TestConcurrentRollupMatchesSequential(t *testing.T) {
	store := newLocalStore(t)
	tracker := memtracker.New(0)
	pool := resources.New(2)
	m := writeDenseFragment(t, store, tracker, pool, "frag3")

	aIdx, err := m.fieldIndex("a")
	require.NoError(t, err)
	require.Equal(t, i64b(0), m.rollups[aIdx].Min)
	require.Equal(t, i64b(99), m.rollups[aIdx].Max)
	require.Equal(t, int64(4950), asI64(m.rollups[aIdx].Sum))
}
