package vfs

import (
	"testing"

	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Write("fragments/f1/footer.bin", []byte("hello world")))

	size, err := store.Size("fragments/f1/footer.bin")
	require.NoError(t, err)
	require.EqualValues(t, 11, size)

	buf := make([]byte, 5)
	n, err := store.ReadAt(buf, "fragments/f1/footer.bin", 6, shared.DataTypeFooter)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf))

	names, err := store.List("fragments/")
	require.NoError(t, err)
	require.Contains(t, names, "fragments/f1/footer.bin")

	require.NoError(t, store.Remove("fragments/f1/footer.bin"))
	_, err = store.Size("fragments/f1/footer.bin")
	require.True(t, errs.Is(err, errs.NotFound))
}
