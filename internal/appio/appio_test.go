package appio_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/appio"
	"github.com/geopm/geopmd/internal/shmem"
)

func newControlAt(t *testing.T, state shmem.ControlState) *shmem.ControlCell {
	t.Helper()
	mp := shmem.NewMemoryBuffer(4096)
	c := shmem.NewControlCell(mp)
	for s := shmem.StateInit + 1; s <= state; s++ {
		require.NoError(t, c.Advance(s))
	}
	return c
}

func TestUpdateAttributesRuntimeAndCount(t *testing.T) {
	control := newControlAt(t, shmem.StateSampleBegin)
	rt := appio.NewRankTable(0)
	aio := appio.New(control, []*appio.RankTable{rt}, nil)

	region := appio.HashRegionName("foo", 0)
	start := time.Now()
	rt.PostEntry(region, start, false)
	rt.PostExit(region, start.Add(10*time.Millisecond), false)

	require.NoError(t, aio.Update(nil))
	require.Equal(t, uint64(1), aio.TotalCount(region))
	require.InDelta(t, 10*time.Millisecond, aio.TotalRegionRuntime(region), float64(time.Millisecond))
}

func TestUnmatchedExitIsDiscarded(t *testing.T) {
	rt := appio.NewRankTable(0)
	region := appio.HashRegionName("bar", 0)
	discarded := rt.PostExit(region, time.Now(), false)
	require.True(t, discarded)
	require.Empty(t, rt.Drain())
}

func TestShutdownObservedAfterControlAdvance(t *testing.T) {
	control := newControlAt(t, shmem.StateSampleBegin)
	aio := appio.New(control, nil, nil)
	require.False(t, aio.DoShutdown())

	for s := shmem.StateSampleBegin + 1; s <= shmem.StateShutdown; s++ {
		require.NoError(t, control.Advance(s))
	}
	require.True(t, aio.DoShutdown())
}

func TestClearRegionEntryExit(t *testing.T) {
	control := newControlAt(t, shmem.StateSampleBegin)
	rt := appio.NewRankTable(0)
	aio := appio.New(control, []*appio.RankTable{rt}, nil)

	region := appio.HashRegionName("baz", 0)
	rt.PostEntry(region, time.Now(), false)
	require.NoError(t, aio.Update(nil))
	require.NotEmpty(t, aio.RegionEntryExit())

	aio.ClearRegionEntryExit()
	require.Empty(t, aio.RegionEntryExit())
}
