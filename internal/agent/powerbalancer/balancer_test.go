package powerbalancer_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/agent/powerbalancer"
)

// fakeClock advances only when ticked, so MinDuration/ControlLatency gates
// are exercised deterministically.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time         { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// runtimeAtLimit is a synthetic monotonic model: runtime grows 3ms per watt
// shaved off a 200W cap, crossing a 1.050s target around L=183W.
func runtimeAtLimit(limit float64) float64 {
	return 1.000 + (200-limit)*0.003
}

func fillStableHistory(b *powerbalancer.Balancer, limit float64, n int) {
	base := runtimeAtLimit(limit)
	for i := 0; i < n; i++ {
		jitter := 0.0001
		if i%2 == 0 {
			jitter = -0.0001
		}
		b.RecordEpochRuntime(base + jitter)
	}
}

func TestPowerBalancerShrinkConvergesNearThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cfg := powerbalancer.DefaultConfig()
	cfg.InitialDelta = 4
	cfg.MinSamples = 32
	cfg.HistorySize = 32
	cfg.MinDuration = time.Second
	cfg.ControlLatency = time.Second

	b := powerbalancer.New(cfg, 200)
	powerbalancer.SetClockForTest(b, clock.now)

	clock.advance(2 * time.Second)
	fillStableHistory(b, 200, 32)
	require.True(t, b.IsRuntimeStable())
	require.InDelta(t, 1.000, b.RuntimeEstimate(), 0.005)

	b.SetTarget(1.050)

	const maxIterations = 50
	for i := 0; i < maxIterations && !b.IsFrozen(); i++ {
		clock.advance(2 * time.Second)
		fillStableHistory(b, b.PowerLimit(), 32)
		b.Tick()
	}
	require.True(t, b.IsFrozen(), "shrink phase should converge")

	// L* is the largest L with median runtime >= 1.050s under the model
	// above: 1.000 + (200-L)*0.003 >= 1.050 => L <= 183.33.
	lStar := 183.0
	require.GreaterOrEqual(t, b.PowerLimit(), lStar-4)
	require.LessOrEqual(t, b.PowerLimit(), lStar+4)
	require.InDelta(t, 200-b.PowerLimit(), b.PowerSlack(), 1e-9)
}

func TestPowerBalancerHalvesDeltaWhenShrinkDoesNotImprove(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cfg := powerbalancer.DefaultConfig()
	cfg.InitialDelta = 4
	cfg.MinSamples = 16
	cfg.HistorySize = 16
	cfg.MinDuration = time.Second
	cfg.ControlLatency = time.Second

	b := powerbalancer.New(cfg, 200)
	powerbalancer.SetClockForTest(b, clock.now)

	// Flat runtime model: shrinking power never changes runtime (every
	// fillStableHistory call below uses the same limit=200 baseline), so
	// every shrink step after the unconditional first one should halve
	// delta: 4W, then 2W, then 1W.
	clock.advance(2 * time.Second)
	fillStableHistory(b, 200, 16)
	limitAtCap := b.PowerLimit()
	b.SetTarget(10.0) // unreachable target forces repeated shrink attempts
	require.InDelta(t, 4.0, limitAtCap-b.PowerLimit(), 1e-9, "SetTarget takes the first, unconditional shrink step")

	limitAfterFirstShrink := b.PowerLimit()
	clock.advance(2 * time.Second)
	fillStableHistory(b, 200, 16) // flat: same runtime regardless of limit
	b.Tick()
	require.InDelta(t, 2.0, limitAfterFirstShrink-b.PowerLimit(), 1e-9, "delta should have halved from 4W to 2W")

	limitAfterSecondShrink := b.PowerLimit()
	clock.advance(2 * time.Second)
	fillStableHistory(b, 200, 16)
	b.Tick()
	require.InDelta(t, 1.0, limitAfterSecondShrink-b.PowerLimit(), 1e-9, "delta should have halved again from 2W to 1W")
}

func TestPowerBalancerCapUpdateResetsState(t *testing.T) {
	b := powerbalancer.New(powerbalancer.DefaultConfig(), 150)
	b.RecordEpochRuntime(1.0)

	b.SetCap(180)
	require.Equal(t, 180.0, b.PowerLimit())
	require.Equal(t, 0.0, b.PowerSlack())
	require.True(t, math.IsNaN(b.RuntimeEstimate()))
}
