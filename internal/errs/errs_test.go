package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAndIs(t *testing.T) {
	err := New(Corrupt, "footer checksum mismatch at offset %d", 128)
	require.True(t, Is(err, Corrupt))
	require.False(t, Is(err, Truncated))
	require.False(t, err.Retryable)
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("short read")
	err := Wrap(IO, cause, "reading tile header")
	require.ErrorIs(t, err, cause)
	require.True(t, err.Retryable)
	require.Equal(t, IO, CategoryOf(err))
}

func TestIsMatchesCategoryNotMessage(t *testing.T) {
	a := New(UsageError, "bad call site one")
	b := New(UsageError, "bad call site two")
	require.True(t, errors.Is(a, b))
}
