// Package powerbalancer implements the reference Agent from spec §4.4: a
// leaf-node power cap/limit controller that shrinks its power limit until
// epoch runtime meets a tree-wide target, then reports the unused power as
// slack for the root to redistribute.
package powerbalancer

import (
	"math"
	"sort"
	"time"
)

type phase int

const (
	phaseObserve phase = iota
	phaseShrink
	phaseFrozen
)

// Config holds the stability-test and shrink-step tunables (spec §4.4
// steps 3 and 6).
type Config struct {
	InitialDelta      float64       // W; initial trial power-limit step
	MinSamples        int           // N_min; minimum epoch samples before stability is possible
	MinDuration       time.Duration // D_min; minimum wall time since last limit change
	ControlLatency    time.Duration // τ; control loop latency, the other half of the D_min/τ max
	StabilityFraction float64       // f; history coefficient-of-variation threshold
	Sensitivity       float64       // fraction of the target runtime T* used as the is_target_met margin
	HistorySize       int           // circular buffer capacity
}

// DefaultConfig matches the reference agent's published defaults.
func DefaultConfig() Config {
	return Config{
		InitialDelta:      4.0,
		MinSamples:        8,
		MinDuration:       1 * time.Second,
		ControlLatency:    100 * time.Millisecond,
		StabilityFraction: 0.02,
		Sensitivity:       0.01,
		HistorySize:       32,
	}
}

// Balancer is the per-leaf-node PowerBalancer state machine (spec §4.4's
// "PowerBalancer state"). It knows nothing about PlatformIO or the tree; it
// is driven by RecordEpochRuntime, SetCap, SetTarget and Tick, and read via
// PowerLimit/PowerSlack/RuntimeEstimate.
type Balancer struct {
	cfg Config
	now func() time.Time

	cap, limit, target, delta float64
	history                   []float64
	lastChange                time.Time
	phase                     phase
	preShrinkRuntime          float64
}

// New constructs a Balancer with cap C and the zero state described in
// spec §4.4 step 1 (as if a cap had just arrived).
func New(cfg Config, cap float64) *Balancer {
	b := &Balancer{cfg: cfg, now: time.Now}
	b.SetCap(cap)
	return b
}

// SetClockForTest overrides the wall clock; production code never calls it.
func SetClockForTest(b *Balancer, now func() time.Time) { b.now = now }

// SetCap implements step 1: a new cap arrives, the limit resets to it, the
// history and target are cleared, and the shrink delta resets to its
// initial value.
func (b *Balancer) SetCap(c float64) {
	b.cap = c
	b.limit = c
	b.target = math.NaN()
	b.delta = b.cfg.InitialDelta
	b.history = b.history[:0]
	b.lastChange = b.now()
	b.phase = phaseObserve
	b.preShrinkRuntime = math.NaN()
}

// RecordEpochRuntime implements step 2: push one epoch runtime sample into
// the history.
func (b *Balancer) RecordEpochRuntime(r float64) {
	b.history = append(b.history, r)
	if len(b.history) > b.cfg.HistorySize {
		b.history = b.history[len(b.history)-b.cfg.HistorySize:]
	}
}

// IsRuntimeStable implements step 3.
func (b *Balancer) IsRuntimeStable() bool {
	if len(b.history) < b.cfg.MinSamples {
		return false
	}
	minWait := b.cfg.MinDuration
	if b.cfg.ControlLatency > minWait {
		minWait = b.cfg.ControlLatency
	}
	if b.now().Sub(b.lastChange) < minWait {
		return false
	}
	return coefficientOfVariation(b.history) < b.cfg.StabilityFraction
}

// RuntimeEstimate implements step 4: the median of the history once stable,
// NaN before.
func (b *Balancer) RuntimeEstimate() float64 {
	if !b.IsRuntimeStable() {
		return math.NaN()
	}
	return median(b.history)
}

// SetTarget implements the phase 1 -> phase 2 transition (step 5 -> step 6):
// the tree-wide target runtime arrives, and the first shrink step is taken
// immediately against the stable runtime already observed at the full cap.
func (b *Balancer) SetTarget(t float64) {
	b.target = t
	if b.phase != phaseObserve {
		return
	}
	b.preShrinkRuntime = b.RuntimeEstimate()
	b.phase = phaseShrink
	b.limit -= b.delta
	b.history = b.history[:0]
	b.lastChange = b.now()
}

// isTargetMet applies the "within a sensitivity margin of T*" test: the
// margin is a fraction of T* itself rather than of δ, since δ is a power
// delta (watts) and T* a runtime (seconds) and the two are not
// commensurable. cfg.Sensitivity is that fraction.
func (b *Balancer) isTargetMet(r float64) bool {
	margin := b.target * b.cfg.Sensitivity
	return r >= b.target-margin
}

// Tick implements step 6's iteration: once the current limit's runtime is
// stable, either freeze (target met), or halve δ (no improvement since the
// previous shrink step) and take the next shrink step. A no-op outside the
// shrink phase or before the current limit has stabilized.
func (b *Balancer) Tick() {
	if b.phase != phaseShrink || math.IsNaN(b.target) {
		return
	}
	r := b.RuntimeEstimate()
	if math.IsNaN(r) {
		return
	}
	if b.isTargetMet(r) {
		b.phase = phaseFrozen
		return
	}
	if !math.IsNaN(b.preShrinkRuntime) && r <= b.preShrinkRuntime {
		b.delta /= 2
	}
	b.preShrinkRuntime = r
	b.limit -= b.delta
	b.history = b.history[:0]
	b.lastChange = b.now()
}

// PowerLimit returns the current power limit L.
func (b *Balancer) PowerLimit() float64 { return b.limit }

// PowerSlack implements step 7: C - L.
func (b *Balancer) PowerSlack() float64 { return b.cap - b.limit }

// IsFrozen reports whether the shrink phase has converged.
func (b *Balancer) IsFrozen() bool { return b.phase == phaseFrozen }

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func coefficientOfVariation(xs []float64) float64 {
	n := float64(len(xs))
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= n
	if mean == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	stddev := math.Sqrt(sumSq / n)
	return stddev / mean
}
