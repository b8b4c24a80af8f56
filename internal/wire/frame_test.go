package wire_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/wire"
)

func TestFrameRoundTrip(t *testing.T) {
	f := wire.Frame{IsReady: true, Values: []float64{1.5, math.NaN(), -3.0}}
	data := wire.Marshal(f)

	got, err := wire.Unmarshal(data)
	require.NoError(t, err)
	require.True(t, got.IsReady)
	require.Len(t, got.Values, 3)
	require.Equal(t, 1.5, got.Values[0])
	require.True(t, math.IsNaN(got.Values[1]))
	require.Equal(t, -3.0, got.Values[2])
}

func TestFrameEmptyValues(t *testing.T) {
	f := wire.Frame{IsReady: false}
	data := wire.Marshal(f)
	got, err := wire.Unmarshal(data)
	require.NoError(t, err)
	require.False(t, got.IsReady)
	require.Empty(t, got.Values)
}
