package treecomm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/treecomm"
)

func product(fs []int) int {
	p := 1
	for _, f := range fs {
		p *= f
	}
	return p
}

func TestComputeFanoutsProductMatchesNodeCount(t *testing.T) {
	for _, n := range []int{1, 2, 16, 17, 64, 100, 1024} {
		fs, err := treecomm.ComputeFanouts(n, treecomm.MMaxFanOut)
		require.NoError(t, err)
		require.Equal(t, n, product(fs), "n=%d fanouts=%v", n, fs)
	}
}

func TestComputeFanoutsRootUnderBound(t *testing.T) {
	fs, err := treecomm.ComputeFanouts(1024, 16)
	require.NoError(t, err)
	require.LessOrEqual(t, fs[len(fs)-1], 16)
}

func TestComputeFanoutsRejectsNonPositive(t *testing.T) {
	_, err := treecomm.ComputeFanouts(0, 16)
	require.Error(t, err)
}

func TestComputeFanoutsSingleNode(t *testing.T) {
	fs, err := treecomm.ComputeFanouts(1, 16)
	require.NoError(t, err)
	require.Equal(t, []int{1}, fs)
}
