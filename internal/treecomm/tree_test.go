package treecomm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/treecomm"
)

func TestBuildSimulatedForestGathersLevelZeroSamples(t *testing.T) {
	forest := treecomm.BuildSimulatedForest([]int{2, 2})
	require.Len(t, forest, 4)

	var root *treecomm.Tree
	for _, tr := range forest {
		if tr.IsGlobalRoot() {
			root = tr
		}
	}
	require.NotNil(t, root)
	require.Equal(t, 2, root.NumControlledLevels())

	for i, tr := range forest {
		tr.SendUp0([]float64{float64(i)})
	}

	level0 := root.Controlled[0]
	// Node 0 controls level 0 for {0,1}; node 2 controls level 0 for {2,3}.
	var lv0for01, lv0for23 *treecomm.Level
	for _, tr := range forest {
		if tr.NumControlledLevels() >= 1 {
			if tr == root {
				lv0for01 = tr.Controlled[0]
			} else {
				lv0for23 = tr.Controlled[0]
			}
		}
	}
	require.NotNil(t, lv0for01)
	require.NotNil(t, lv0for23)
	_ = level0

	samples01, ready := lv0for01.ReceiveUp()
	require.True(t, ready)
	require.ElementsMatch(t, [][]float64{{0}, {1}}, samples01)

	samples23, ready := lv0for23.ReceiveUp()
	require.True(t, ready)
	require.ElementsMatch(t, [][]float64{{2}, {3}}, samples23)
}

func TestSingleNodeTreeHasNoControlledLevels(t *testing.T) {
	tr := treecomm.NewSingleNodeTree()
	require.Equal(t, 0, tr.NumControlledLevels())
	require.False(t, tr.IsGlobalRoot())
}
