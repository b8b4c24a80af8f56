package treecomm_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/treecomm"
)

func TestMailboxWriteThenRead(t *testing.T) {
	mb := treecomm.NewMailbox()
	_, ready := mb.TryRead(false)
	require.False(t, ready)

	mb.Write([]float64{1, 2, 3})
	v, ready := mb.TryRead(true)
	require.True(t, ready)
	require.Equal(t, []float64{1, 2, 3}, v)

	_, ready = mb.TryRead(false)
	require.False(t, ready)
}

func TestMailboxNaNIsNotReady(t *testing.T) {
	mb := treecomm.NewMailbox()
	mb.Write([]float64{1, math.NaN()})
	_, ready := mb.TryRead(true)
	require.False(t, ready)
}

func TestMailboxPeekDoesNotConsume(t *testing.T) {
	mb := treecomm.NewMailbox()
	mb.Write([]float64{5})
	_, ready := mb.TryRead(false)
	require.True(t, ready)
	v, ready := mb.TryRead(true)
	require.True(t, ready)
	require.Equal(t, []float64{5}, v)
}

func TestMailboxBytesSentAccumulates(t *testing.T) {
	mb := treecomm.NewMailbox()
	mb.Write([]float64{1, 2})
	mb.Write([]float64{3, 4, 5})
	require.Equal(t, uint64(8*2+8*3), mb.BytesSent())
}
