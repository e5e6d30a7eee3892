package fraginfo

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/mattdurham/fragcore/internal/dimension"
	"github.com/mattdurham/fragcore/internal/fragment"
	"github.com/mattdurham/fragcore/internal/memtracker"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/schema"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/mattdurham/fragcore/internal/tilestats"
	"github.com/mattdurham/fragcore/internal/vfs"
	"github.com/mattdurham/fragcore/internal/wire"
	"github.com/stretchr/testify/require"
)

func i64b(v int64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v))
	return b
}

func mustFixed(t *testing.T, lo, hi int64) rangeidx.Range {
	t.Helper()
	r, err := rangeidx.NewFixed(i64b(lo), i64b(hi), 8)
	require.NoError(t, err)
	return r
}

const tilesPerFragment = 10
const cellsPerTile = 10

func newSchema(t *testing.T) *schema.ArraySchema {
	t.Helper()
	dim, err := dimension.New("x", shared.Int64, i64b(0), i64b(99), i64b(10))
	require.NoError(t, err)
	dom := dimension.NewDomain(false, dim)
	sch := &schema.ArraySchema{
		Name:   "s1",
		Dense:  true,
		Domain: dom,
		Attributes: []schema.Attribute{
			{Name: "a", Datatype: shared.Int64, CellValNum: 1},
		},
		CellOrder: schema.RowMajor,
		TileOrder: schema.RowMajor,
	}
	require.NoError(t, sch.Validate())
	return sch
}

// buildFragment writes a minimal, fully-populated single-attribute
// dense fragment, mirroring fragment package's own writeDenseFragment
// test helper closely enough that a fragment built here round-trips
// through fragment.Load exactly the same way.
func buildFragment(t *testing.T, store vfs.ObjectStore, tracker *memtracker.Tracker, sch *schema.ArraySchema, uri string, tStart, tEnd uint64) *fragment.Metadata {
	t.Helper()
	m, err := fragment.New(nil, tracker, sch, uri, tStart, tEnd, true, false, false)
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
	}
	require.NoError(t, m.BuildRTree(leaves))
	require.NoError(t, m.ComputeFragmentRollup(context.Background()))
	require.NoError(t, m.Store(store, nil))
	return m
}

func newLocalStore(t *testing.T) vfs.ObjectStore {
	t.Helper()
	store, err := vfs.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

// TestLoadWindowAndVacuum covers the timestamp-window filter and the
// vacuum-set exclusion together, since a fragment can be dropped from
// a load for either reason.
func TestLoadWindowAndVacuum(t *testing.T) {
	store := newLocalStore(t)
	tracker := memtracker.New(0)
	sch := newSchema(t)
	schemas := map[string]*schema.ArraySchema{sch.Name: sch}
	arrayURI := "arr"

	uriA := FragmentURI(arrayURI, 100, 200, uuid.New(), shared.CurrentVersion)
	uriB := FragmentURI(arrayURI, 300, 400, uuid.New(), shared.CurrentVersion)
	uriC := FragmentURI(arrayURI, 350, 380, uuid.New(), shared.CurrentVersion)
	buildFragment(t, store, tracker, sch, uriA, 100, 200)
	buildFragment(t, store, tracker, sch, uriB, 300, 400)
	buildFragment(t, store, tracker, sch, uriC, 350, 380)

	require.NoError(t, writeVacuumList(store, arrayURI, []string{uriC}))

	info := New(arrayURI, store, tracker, nil, sch, schemas)
	require.NoError(t, info.Load(context.Background(), 300, 400, nil))

	n, err := info.FragmentNum()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	f, err := info.Fragment(0)
	require.NoError(t, err)
	require.Equal(t, uriB, f.URI())
	require.True(t, f.Dense())
	require.False(t, f.HasConsolidatedMetadata())

	toVacuum, err := info.ToVacuum()
	require.NoError(t, err)
	require.Equal(t, []string{uriC}, toVacuum)

	unconsolidated, err := info.UnconsolidatedMetadataNum()
	require.NoError(t, err)
	require.Equal(t, 1, unconsolidated)

	mbrNum, err := f.MBRNum()
	require.NoError(t, err)
	require.Equal(t, uint64(tilesPerFragment), mbrNum)
}

// TestExpandAnteriorNDRange covers folding a fragment committed
// strictly before the load window into a running non-empty domain.
func TestExpandAnteriorNDRange(t *testing.T) {
	store := newLocalStore(t)
	tracker := memtracker.New(0)
	sch := newSchema(t)
	schemas := map[string]*schema.ArraySchema{sch.Name: sch}
	arrayURI := "arr"

	uriA := FragmentURI(arrayURI, 100, 200, uuid.New(), shared.CurrentVersion)
	uriB := FragmentURI(arrayURI, 300, 400, uuid.New(), shared.CurrentVersion)
	buildFragment(t, store, tracker, sch, uriA, 100, 200)
	buildFragment(t, store, tracker, sch, uriB, 300, 400)

	info := New(arrayURI, store, tracker, nil, sch, schemas)
	require.NoError(t, info.Load(context.Background(), 300, 400, nil))

	nd, err := info.ExpandAnteriorNDRange(sch.Domain, nil)
	require.NoError(t, err)
	require.Len(t, nd, 1)
	require.True(t, nd[0].Equal(mustFixed(t, 0, 99)))
}

// TestLoadAndReplace covers splicing a consolidated result fragment
// into the position of the single fragment it replaces.
func TestLoadAndReplace(t *testing.T) {
	store := newLocalStore(t)
	tracker := memtracker.New(0)
	sch := newSchema(t)
	schemas := map[string]*schema.ArraySchema{sch.Name: sch}
	arrayURI := "arr"

	uriB := FragmentURI(arrayURI, 300, 400, uuid.New(), shared.CurrentVersion)
	buildFragment(t, store, tracker, sch, uriB, 300, 400)

	info := New(arrayURI, store, tracker, nil, sch, schemas)
	require.NoError(t, info.Load(context.Background(), 300, 400, nil))

	uriNew := FragmentURI(arrayURI, 300, 400, uuid.New(), shared.CurrentVersion)
	buildFragment(t, store, tracker, sch, uriNew, 300, 400)

	require.NoError(t, info.LoadAndReplace(uriNew, []string{uriB}, nil))

	n, err := info.FragmentNum()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	f, err := info.Fragment(0)
	require.NoError(t, err)
	require.Equal(t, uriNew, f.URI())
}

// extractFooterTile reads the exact generic-tile-encoded footer bytes
// fragment.Load's own-file path would read, mirroring that package's
// unexported readFooterTile logic, so a test can build a consolidated
// metadata blob out of a real stored fragment's footer.
func extractFooterTile(t *testing.T, store vfs.ObjectStore, uri string) []byte {
	t.Helper()
	path := uri + "/" + metadataFileName
	size, err := store.Size(path)
	require.NoError(t, err)
	trailer := make([]byte, shared.FooterSizeTrailerBytes)
	_, err = store.ReadAt(trailer, path, size-int64(shared.FooterSizeTrailerBytes), shared.DataTypeFooter)
	require.NoError(t, err)
	footerSize, err := wire.NewCursor(trailer).GetUint64()
	require.NoError(t, err)
	footerOffset := size - int64(shared.FooterSizeTrailerBytes) - int64(footerSize)
	require.GreaterOrEqual(t, footerOffset, int64(0))
	buf := make([]byte, footerSize)
	_, err = store.ReadAt(buf, path, footerOffset, shared.DataTypeFooter)
	require.NoError(t, err)
	return buf
}

// TestConsolidatedMetadataFastPath covers loading a fragment's footer
// from a consolidated blob instead of its own metadata file.
func TestConsolidatedMetadataFastPath(t *testing.T) {
	store := newLocalStore(t)
	tracker := memtracker.New(0)
	sch := newSchema(t)
	schemas := map[string]*schema.ArraySchema{sch.Name: sch}
	arrayURI := "arr"

	uriD := FragmentURI(arrayURI, 300, 400, uuid.New(), shared.CurrentVersion)
	buildFragment(t, store, tracker, sch, uriD, 300, 400)

	footer := extractFooterTile(t, store, uriD)
	require.NoError(t, writeConsolidatedMetadata(store, arrayURI, map[string][]byte{uriD: footer}))

	info := New(arrayURI, store, tracker, nil, sch, schemas)
	require.NoError(t, info.Load(context.Background(), 300, 400, nil))

	f, err := info.Fragment(0)
	require.NoError(t, err)
	require.True(t, f.HasConsolidatedMetadata())

	unconsolidated, err := info.UnconsolidatedMetadataNum()
	require.NoError(t, err)
	require.Equal(t, 0, unconsolidated)
}

// TestDiskCacheSummaryRoundTrip covers a second Info loading the same
// array from the bbolt-backed cache instead of re-reading fragment
// footers, and lazily reloading one on first MBR access.
func TestDiskCacheSummaryRoundTrip(t *testing.T) {
	store := newLocalStore(t)
	tracker := memtracker.New(0)
	sch := newSchema(t)
	schemas := map[string]*schema.ArraySchema{sch.Name: sch}
	arrayURI := "arr"
	cacheDir := t.TempDir()

	uriB := FragmentURI(arrayURI, 300, 400, uuid.New(), shared.CurrentVersion)
	buildFragment(t, store, tracker, sch, uriB, 300, 400)

	primed := New(arrayURI, store, tracker, nil, sch, schemas)
	require.NoError(t, primed.SetConfig(cacheDir))
	require.NoError(t, primed.Load(context.Background(), 300, 400, nil))

	cached := New(arrayURI, store, tracker, nil, sch, schemas)
	require.NoError(t, cached.SetConfig(cacheDir))
	require.NoError(t, cached.Load(context.Background(), 300, 400, nil))

	n, err := cached.FragmentNum()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	f, err := cached.Fragment(0)
	require.NoError(t, err)
	require.Equal(t, uriB, f.URI())

	mbrNum, err := f.MBRNum()
	require.NoError(t, err)
	require.Equal(t, uint64(tilesPerFragment), mbrNum)
}

// TestSetConfigAfterLoadRejected covers the set_config-before-load
// lifecycle rule.
func TestSetConfigAfterLoadRejected(t *testing.T) {
	store := newLocalStore(t)
	tracker := memtracker.New(0)
	sch := newSchema(t)
	schemas := map[string]*schema.ArraySchema{sch.Name: sch}

	info := New("arr", store, tracker, nil, sch, schemas)
	require.NoError(t, info.Load(context.Background(), 0, 1<<62, nil))
	require.Error(t, info.SetConfig(t.TempDir()))
}
