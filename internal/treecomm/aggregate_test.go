package treecomm_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/treecomm"
)

func TestAggSumSkipsNaN(t *testing.T) {
	got := treecomm.Aggregators["sum"]([]float64{1, math.NaN(), 3})
	require.InDelta(t, 4, got, 1e-9)
}

func TestAggAllNaNYieldsNaN(t *testing.T) {
	for name, fn := range treecomm.Aggregators {
		got := fn([]float64{math.NaN(), math.NaN()})
		require.True(t, math.IsNaN(got), "aggregator %q should yield NaN for all-NaN input", name)
	}
}

func TestAggMean(t *testing.T) {
	got := treecomm.Aggregators["mean"]([]float64{2, 4, 6})
	require.InDelta(t, 4, got, 1e-9)
}

func TestAggLogicalOr(t *testing.T) {
	require.Equal(t, 1.0, treecomm.Aggregators["logical-or"]([]float64{0, 0, 1}))
	require.Equal(t, 0.0, treecomm.Aggregators["logical-or"]([]float64{0, 0}))
}

func TestAggExpectSameMismatchYieldsNaN(t *testing.T) {
	got := treecomm.Aggregators["expect-same"]([]float64{1, 1, 2})
	require.True(t, math.IsNaN(got))
}

func TestAggExpectSameMatch(t *testing.T) {
	got := treecomm.Aggregators["expect-same"]([]float64{7, 7, 7})
	require.Equal(t, 7.0, got)
}
