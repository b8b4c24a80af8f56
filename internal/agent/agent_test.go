package agent_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/agent"
)

type countingAgent struct{ id int }

func (countingAgent) Descend([]float64, [][]float64)             {}
func (countingAgent) Ascend([][]float64, []float64)              {}
func (countingAgent) AdjustPlatform([]float64) error             { return nil }
func (countingAgent) SamplePlatform([]float64)                   {}
func (countingAgent) Wait()                                      {}
func (countingAgent) PolicyNames() []string                      { return nil }
func (countingAgent) SampleNames() []string                      { return nil }
func (countingAgent) ReportHeader() map[string]string            { return nil }
func (countingAgent) ReportNode() map[string]string              { return nil }
func (countingAgent) ReportRegion(uint64) map[string]string      { return nil }
func (countingAgent) TraceColumns() []string                     { return nil }

func TestRegistryConstructsOnce(t *testing.T) {
	r := agent.NewRegistry()
	calls := 0
	r.Register("counter", func(map[string]string) (agent.Agent, error) {
		calls++
		return countingAgent{id: calls}, nil
	})

	a1, err := r.Get("counter", nil)
	require.NoError(t, err)
	a2, err := r.Get("counter", nil)
	require.NoError(t, err)

	require.Equal(t, 1, calls)
	require.Equal(t, a1, a2)
}

func TestRegistryUnknownName(t *testing.T) {
	r := agent.NewRegistry()
	_, err := r.Get("nope", nil)
	require.Error(t, err)
}
