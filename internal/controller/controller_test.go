package controller_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/agent"
	"github.com/geopm/geopmd/internal/agent/powerbalancer"
	"github.com/geopm/geopmd/internal/appio"
	"github.com/geopm/geopmd/internal/controller"
	"github.com/geopm/geopmd/internal/gerr"
	"github.com/geopm/geopmd/internal/manager"
	"github.com/geopm/geopmd/internal/platformio"
	"github.com/geopm/geopmd/internal/shmem"
	"github.com/geopm/geopmd/internal/treecomm"
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

type fakeManager struct {
	policy manager.Policy
	pushed []manager.Sample
}

func (f *fakeManager) Pull(ctx context.Context) (manager.Policy, error) { return f.policy, nil }
func (f *fakeManager) Push(ctx context.Context, s manager.Sample) error {
	f.pushed = append(f.pushed, s)
	return nil
}

func newLeafController(t *testing.T, mgr manager.Sampler) (*controller.Controller, *fakeManager) {
	t.Helper()
	hw := platformio.NewFakeHardware()
	hw.SetMSR(0, 0x610, 0)
	pio := platformio.New(hw, nil)
	ctlHandle, err := pio.PushControl("PKG_POWER_LIMIT", platformio.RawControl{CPU: 0, MSROffset: 0x610, BeginBit: 0, EndBit: 14, Scalar: 0.125})
	require.NoError(t, err)

	bal := powerbalancer.NewLeaf(powerbalancer.DefaultConfig(), 0, powerbalancer.PlatformBinding{PIO: pio, PowerLimitControl: ctlHandle}, nil)

	control := newControlAt(t, shmem.StateSampleBegin)
	aio := appio.New(control, nil, nil)

	cfg := controller.Config{
		Host:        "n0",
		Version:     "1.0.0",
		Profile:     "test",
		PIO:         pio,
		AppIO:       aio,
		Tree:        treecomm.NewSingleNodeTree(),
		Agents:      []agent.Agent{bal},
		Manager:     mgr,
		SampleArity: 2,
		PolicyArity: 2,
	}
	fm, _ := mgr.(*fakeManager)
	return controller.New(cfg), fm
}

func TestTickAsRootPullsAdjustsAndPushes(t *testing.T) {
	fm := &fakeManager{policy: manager.Policy{Values: []float64{200, 1.0}}}
	c, _ := newLeafController(t, fm)

	require.NoError(t, c.Tick(context.Background()))

	require.Len(t, fm.pushed, 1)
	sample := fm.pushed[0].Values
	require.Len(t, sample, 2)
	require.True(t, math.IsNaN(sample[0]), "runtime estimate should be NaN before the balancer observes stability")
	require.Greater(t, sample[1], 0.0, "slack should be positive after the first shrink step")
}

func TestTickSkipsWalkDownWhenPolicyNotReady(t *testing.T) {
	notReady := &blockingManager{}
	c, _ := newLeafController(t, notReady)

	require.NoError(t, c.Tick(context.Background()))
	require.Equal(t, 1, notReady.pullCalls)
}

type blockingManager struct{ pullCalls int }

func (b *blockingManager) Pull(ctx context.Context) (manager.Policy, error) {
	b.pullCalls++
	return manager.Policy{}, gerr.New(gerr.KindAppStalled, "controller_test.go", 0, "policy not ready")
}
func (b *blockingManager) Push(ctx context.Context, s manager.Sample) error { return nil }
