package report_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/report"
)

func TestRenderIncludesHeaderProfileAgentAndTotals(t *testing.T) {
	w := report.NewWriter("1.0.0", "my-profile")
	w.SetAgentHeader(map[string]string{"Agent": "power_balancer"})
	w.AddNode(report.NodeReport{
		Host: "node01",
		Regions: []report.RegionLine{
			{Name: "compute", Runtime: 2 * time.Second, EnergyJoules: 150, FrequencyPercent: 92.5, Count: 10},
		},
		Runtime:        5 * time.Second,
		MemoryHWMBytes: 1 << 20,
	})
	w.SetControllerBandwidth(4096)

	out := w.Render()
	require.Contains(t, out, "##### geopm 1.0.0 #####")
	require.Contains(t, out, "Profile: my-profile")
	require.Contains(t, out, "Agent: power_balancer")
	require.Contains(t, out, "Host: node01")
	require.Contains(t, out, "Region compute")
	require.Contains(t, out, "Application Totals:")
	require.Contains(t, out, "controller-network-bandwidth-bytes: 4096")
	require.True(t, strings.Index(out, "Profile:") < strings.Index(out, "Host:"))
}

func TestRenderDefaultsAgentNameWhenMissing(t *testing.T) {
	w := report.NewWriter("1.0.0", "p")
	out := w.Render()
	require.Contains(t, out, "Agent: unknown")
}
