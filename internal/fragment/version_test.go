package fragment

import (
	"context"
	"testing"

	"github.com/mattdurham/fragcore/internal/memtracker"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/schema"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/stretchr/testify/require"
)

// TestVersionGatingPreV11SkipsStatsAndRollup mirrors a footer written
// before tile-level min/max/sum/null_count (version 11) and the
// fragment-level rollup (version 12) existed: both sections are absent
// from the stored file, and loading one back leaves their lazy loaders
// as harmless no-ops rather than errors.
func TestVersionGatingPreV11SkipsStatsAndRollup(t *testing.T) {
	store := newLocalStore(t)
	tracker := memtracker.New(0)
	sch := newDenseSchema(t)
	m2, err := New(nil, tracker, sch, "frag-v7", 0, 0, true, false, false)
	require.NoError(t, err)
	m2.Version = shared.VersionFileValiditySizes // 7: predates stats(11)/rollup(12)/schema-name(10)
	require.NoError(t, m2.Init(rangeidx.NDRange{mustFixed(t, 0, 99)}))
	for tid := 0; tid < tilesPerFragment; tid++ {
		require.NoError(t, m2.SetTileOffset("a", uint64(tid), 80))
		require.NoError(t, m2.SetTileOffset("s", uint64(tid), 88))
		require.NoError(t, m2.SetTileVarOffset("s", uint64(tid), 30))
		require.NoError(t, m2.SetTileVarSize("s", uint64(tid), 30))
	}
	require.NoError(t, m2.BuildRTree(nil))
	require.NoError(t, m2.Store(store, nil))

	loaded, err := Load(LoadOptions{
		Store:         store,
		Tracker:       tracker,
		URI:           "frag-v7",
		DefaultSchema: sch,
	})
	require.NoError(t, err)
	require.Equal(t, shared.VersionFileValiditySizes, loaded.Version)
	require.Equal(t, sch.Name, loaded.ArraySchemaName)

	require.NoError(t, loaded.loadStats())
	require.True(t, loaded.loadedStats)
	_, err = loaded.GetTileNullCount("a", 0)
	require.Error(t, err)

	require.NoError(t, loaded.loadFragmentRollup())
	require.True(t, loaded.loadedRollup)
	aIdx, err := loaded.fieldIndex("a")
	require.NoError(t, err)
	require.Nil(t, loaded.rollups[aIdx].Min)

	require.NoError(t, loaded.ComputeFragmentRollup(context.Background()))
}

// TestEncodedFieldNameVersionGating checks the compact on-disk field
// naming: versions before 8 use the raw schema name, 8+ encode
// "a{idx}"/"d{idx}" plus fixed tokens for the pseudo-fields.
func TestEncodedFieldNameVersionGating(t *testing.T) {
	sch := newDenseSchema(t)
	tracker := memtracker.New(0)
	m, err := New(nil, tracker, sch, "enc", 0, 0, true, false, false)
	require.NoError(t, err)

	m.Version = shared.VersionCompactFieldNames - 1
	aIdx, err := m.fieldIndex("a")
	require.NoError(t, err)
	require.Equal(t, "a", m.encodedFieldName(aIdx))
	xIdx, err := m.fieldIndex("x")
	require.NoError(t, err)
	require.Equal(t, "x", m.encodedFieldName(xIdx))

	m.Version = shared.VersionCompactFieldNames
	require.Equal(t, "a0", m.encodedFieldName(aIdx))
	sIdx, err := m.fieldIndex("s")
	require.NoError(t, err)
	require.Equal(t, "a1", m.encodedFieldName(sIdx))
	require.Equal(t, "d0", m.encodedFieldName(xIdx))
	coordsIdx, err := m.fieldIndex("coords")
	require.NoError(t, err)
	require.Equal(t, "__coords", m.encodedFieldName(coordsIdx))
}

// TestVersionGatingHasTimestampsAndDeleteMeta mirrors a fragment built
// with both pseudo-fields enabled at a version new enough to persist
// them: HasTimestamps/HasDeleteMeta and their extra fields round-trip,
// unlike a pre-14/15 footer, which must never carry them at all (a
// writer only sets these flags true when the fragment's format version
// actually supports them).
func TestVersionGatingHasTimestampsAndDeleteMeta(t *testing.T) {
	store := newLocalStore(t)
	tracker := memtracker.New(0)
	sch := newDenseSchema(t)
	m, err := New(nil, tracker, sch, "frag-ts", 0, 0, true, true, true)
	require.NoError(t, err)
	require.Equal(t, shared.CurrentVersion, m.Version) // >= VersionHasDeleteMeta(15)
	require.NoError(t, m.Init(rangeidx.NDRange{mustFixed(t, 0, 99)}))
	for i := range m.fields {
		require.NoError(t, m.SetTileOffset(m.fields[i].Name, 0, 10))
		require.NoError(t, m.SetTileVarOffset(m.fields[i].Name, 0, 0))
		require.NoError(t, m.SetTileVarSize(m.fields[i].Name, 0, 0))
	}
	require.NoError(t, m.BuildRTree(nil))
	require.NoError(t, m.Store(store, nil))

	schemas := map[string]*schema.ArraySchema{sch.Name: sch}
	loaded, err := Load(LoadOptions{Store: store, Tracker: tracker, URI: "frag-ts", Schemas: schemas})
	require.NoError(t, err)
	require.True(t, loaded.HasTimestamps)
	require.True(t, loaded.HasDeleteMeta)
	require.Len(t, loaded.fields, len(sch.Attributes)+1+sch.Domain.NDim()+3)
}
