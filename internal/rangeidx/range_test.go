package rangeidx

import (
	"encoding/binary"
	"testing"

	"github.com/mattdurham/fragcore/internal/wire"
	"github.com/stretchr/testify/require"
)

func u64b(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func TestFixedRangeRoundTrip(t *testing.T) {
	r, err := NewFixed(u64b(10), u64b(20), 8)
	require.NoError(t, err)
	require.False(t, r.IsVar())
	require.Equal(t, 16, r.Size())

	enc := wire.NewEncoder(16)
	r.Encode(enc)

	c := wire.NewCursor(enc.Bytes())
	got, err := DecodeFixed(c, 8)
	require.NoError(t, err)
	require.True(t, r.Equal(got))

	start, end, err := got.StartEnd()
	require.NoError(t, err)
	require.EqualValues(t, 10, binary.LittleEndian.Uint64(start))
	require.EqualValues(t, 20, binary.LittleEndian.Uint64(end))
}

func TestVarRangeRoundTrip(t *testing.T) {
	r := NewVar([]byte("alpha"), []byte("zeta"))
	require.True(t, r.IsVar())

	enc := wire.NewEncoder(r.Size())
	r.Encode(enc)

	c := wire.NewCursor(enc.Bytes())
	got, err := DecodeVar(c)
	require.NoError(t, err)

	start, end, err := got.StartEnd()
	require.NoError(t, err)
	require.Equal(t, "alpha", string(start))
	require.Equal(t, "zeta", string(end))
}

func TestNDRangeEmpty(t *testing.T) {
	var nd NDRange
	require.True(t, nd.Empty())

	r, _ := NewFixed(u64b(1), u64b(2), 8)
	nd = NDRange{r, Range{}}
	require.True(t, nd.Empty())

	nd = NDRange{r}
	require.False(t, nd.Empty())
	require.Equal(t, 16, nd.Size())
}
