// Package agent declares the pluggable per-level policy/sample contract
// (spec §4.4) and a registry the Controller resolves agent names through.
package agent

import (
	"sync"

	"github.com/geopm/geopmd/internal/gerr"
)

// Agent is a set of pure functions over the agent's own state plus the
// vectors TreeComm and Controller pass in; it owns no I/O scheduling of its
// own. The same concrete type is used at every tree level: a node only
// calls the leaf-only methods (AdjustPlatform, SamplePlatform) at level 0,
// and Ascend/Descend at every controlled level including 0.
type Agent interface {
	// Descend fans policyIn out to policiesOut, one slot per child.
	Descend(policyIn []float64, policiesOut [][]float64)
	// Ascend combines samplesIn (one slot per child) into sampleOut.
	Ascend(samplesIn [][]float64, sampleOut []float64)
	// AdjustPlatform applies the final policy to platform controls (leaf only).
	AdjustPlatform(policyIn []float64) error
	// SamplePlatform reads platform signals into sampleOut (leaf only).
	SamplePlatform(sampleOut []float64)
	// Wait blocks until the next control tick boundary.
	Wait()

	PolicyNames() []string
	SampleNames() []string

	ReportHeader() map[string]string
	ReportNode() map[string]string
	ReportRegion(regionID uint64) map[string]string
	TraceColumns() []string
}

// Factory constructs an Agent from its textual configuration (the
// GEOPM_AGENT/policy-file driven settings).
type Factory func(config map[string]string) (Agent, error)

// Registry resolves agent names to instances, constructing each agent at
// most once: the first Get for a name builds and caches it, every
// subsequent Get for that name returns the same instance.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Agent
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory), instances: make(map[string]Agent)}
}

// Register associates name with a Factory. Registering the same name twice
// overwrites the earlier factory; it does not affect an already-constructed
// instance.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get returns the named agent, constructing it via its Factory on first
// use.
func (r *Registry) Get(name string, config map[string]string) (Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.instances[name]; ok {
		return a, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, gerr.New(gerr.KindInvalidArgument, "agent.go", 0, "unknown agent %q", name)
	}
	a, err := f(config)
	if err != nil {
		return nil, gerr.Wrap(gerr.KindRuntime, "agent.go", 0, err, "constructing agent %q", name)
	}
	r.instances[name] = a
	return a, nil
}

// Names returns every registered (not necessarily constructed) agent name.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	return names
}
