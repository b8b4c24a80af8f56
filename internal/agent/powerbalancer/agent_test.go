package powerbalancer_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/agent/powerbalancer"
)

func TestInteriorAscendMaxRuntimeSumSlack(t *testing.T) {
	a := powerbalancer.NewInterior()
	samplesIn := [][]float64{
		{1.0, 5.0},
		{1.2, 3.0},
		{math.NaN(), math.NaN()},
	}
	out := make([]float64, 2)
	a.Ascend(samplesIn, out)
	require.InDelta(t, 1.2, out[0], 1e-9)
	require.InDelta(t, 8.0, out[1], 1e-9)
}

func TestInteriorAscendAllNaNYieldsNaN(t *testing.T) {
	a := powerbalancer.NewInterior()
	samplesIn := [][]float64{{math.NaN(), math.NaN()}}
	out := make([]float64, 2)
	a.Ascend(samplesIn, out)
	require.True(t, math.IsNaN(out[0]))
	require.True(t, math.IsNaN(out[1]))
}

func TestDescendBroadcasts(t *testing.T) {
	a := powerbalancer.NewInterior()
	policyIn := []float64{180, 1.05}
	out := [][]float64{make([]float64, 2), make([]float64, 2)}
	a.Descend(policyIn, out)
	require.Equal(t, []float64{180, 1.05}, out[0])
	require.Equal(t, []float64{180, 1.05}, out[1])
}
