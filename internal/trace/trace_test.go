package trace_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/trace"
)

func TestWriteEmitsHeaderOnceThenRows(t *testing.T) {
	var buf bytes.Buffer
	w := trace.New(&buf, []string{"POWER_LIMIT"})

	require.NoError(t, w.Write(trace.Row{
		TimeSeconds: 1.0, RegionID: 42, EnergyPackage: 10, PowerPackage: 20, Frequency: 2.1,
		AgentColumns: []float64{180},
	}))
	require.NoError(t, w.Write(trace.Row{
		TimeSeconds: 2.0, RegionID: 42, EnergyPackage: 12, PowerPackage: 20, Frequency: 2.1,
		AgentColumns: []float64{176},
	}))
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "TIME,REGION_ID#,ENERGY_PACKAGE,POWER_PACKAGE,FREQUENCY,POWER_LIMIT", lines[0])
	require.Contains(t, lines[1], "180.000000")
}

func TestWriteRejectsMismatchedAgentColumnCount(t *testing.T) {
	var buf bytes.Buffer
	w := trace.New(&buf, []string{"POWER_LIMIT"})
	err := w.Write(trace.Row{AgentColumns: []float64{1, 2}})
	require.Error(t, err)
}
