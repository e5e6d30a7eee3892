package generictile

import (
	"testing"

	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/stretchr/testify/require"
)

func TestRoundTripUncompressed(t *testing.T) {
	tile := Tile{Data: []byte("hello fragment metadata")}
	buf, n, err := WriteGeneric(nil, tile, nil)
	require.NoError(t, err)
	require.Len(t, buf, n)

	got, consumed, err := ReadGeneric(buf, nil)
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	require.Equal(t, tile.Data, got.Data)
}

func TestRoundTripZstd(t *testing.T) {
	tile := Tile{Filters: []shared.FilterKind{shared.FilterZstd}, Data: []byte("abcabcabcabcabcabcabcabcabcabc")}
	buf, _, err := WriteGeneric(nil, tile, nil)
	require.NoError(t, err)

	got, _, err := ReadGeneric(buf, nil)
	require.NoError(t, err)
	require.Equal(t, tile.Data, got.Data)
}

func TestRoundTripZstdThenAES(t *testing.T) {
	key := Key("super secret master key")
	tile := Tile{Filters: []shared.FilterKind{shared.FilterZstd, shared.FilterAES256GCM}, Data: []byte("sensitive tile payload data")}
	buf, _, err := WriteGeneric(nil, tile, key)
	require.NoError(t, err)

	_, _, err = ReadGeneric(buf, Key("wrong key entirely"))
	require.True(t, errs.Is(err, errs.Decrypt))

	got, _, err := ReadGeneric(buf, key)
	require.NoError(t, err)
	require.Equal(t, tile.Data, got.Data)
}

func TestCorruptChecksumDetected(t *testing.T) {
	tile := Tile{Data: []byte("some bytes")}
	buf, _, err := WriteGeneric(nil, tile, nil)
	require.NoError(t, err)
	buf[len(buf)-1] ^= 0xFF

	_, _, err = ReadGeneric(buf, nil)
	require.True(t, errs.Is(err, errs.Corrupt))
}

func TestMultipleTilesConcatenated(t *testing.T) {
	var buf []byte
	buf, _, err := WriteGeneric(buf, Tile{Data: []byte("first")}, nil)
	require.NoError(t, err)
	buf, _, err = WriteGeneric(buf, Tile{Data: []byte("second")}, nil)
	require.NoError(t, err)

	first, n1, err := ReadGeneric(buf, nil)
	require.NoError(t, err)
	require.Equal(t, "first", string(first.Data))

	second, _, err := ReadGeneric(buf[n1:], nil)
	require.NoError(t, err)
	require.Equal(t, "second", string(second.Data))
}
