package memtracker

import (
	"testing"

	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/stretchr/testify/require"
)

func TestTakeReleaseWithinBudget(t *testing.T) {
	tr := New(100)
	require.NoError(t, tr.TakeMemory(60, shared.MemoryRTree))
	require.EqualValues(t, 60, tr.Used())
	require.EqualValues(t, 60, tr.UsedFor(shared.MemoryRTree))

	tr.ReleaseMemory(20, shared.MemoryRTree)
	require.EqualValues(t, 40, tr.Used())
}

func TestTakeMemoryOverBudget(t *testing.T) {
	tr := New(100)
	require.NoError(t, tr.TakeMemory(90, shared.MemoryFooter))
	err := tr.TakeMemory(20, shared.MemoryFooter)
	require.True(t, errs.Is(err, errs.OutOfBudget))
	require.EqualValues(t, 90, tr.Used())
}

func TestUnboundedBudget(t *testing.T) {
	tr := New(0)
	require.NoError(t, tr.TakeMemory(1<<40, shared.MemoryTileOffsets))
}
