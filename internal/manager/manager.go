// Package manager implements the root-of-tree ManagerIO/Endpoint boundary
// (spec §2's component table, SPEC_FULL §4.6): pulling a policy in from
// whichever of GEOPM_POLICY (JSON file) or GEOPM_SHMKEY (shared-memory
// cell) is configured, and pushing the root's aggregated sample back out
// either to a shared-memory cell or to Prometheus.
package manager

import (
	"context"
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/geopm/geopmd/internal/gerr"
	"github.com/geopm/geopmd/internal/metrics"
	"github.com/geopm/geopmd/internal/shmem"
)

// Policy is the root policy vector, in the order of the declaring agent's
// PolicyNames(). The JSON policy file supplies it as a flat array of
// numbers in that order; an object keyed by policy name, or a "NAN"
// string entry, is not accepted.
type Policy struct {
	Values []float64
}

// Sample is the root's aggregated sample vector, named by the declaring
// agent's SampleNames().
type Sample struct {
	Values []float64
}

// Sampler is the ManagerIOSampler contract: Pull reads a fresh policy at
// the start of each walk_down, Push emits the aggregated sample at the end
// of each walk_up.
type Sampler interface {
	Pull(ctx context.Context) (Policy, error)
	Push(ctx context.Context, s Sample) error
}

// jsonPolicyFile implements Sampler over a flat JSON array policy file, the
// GEOPM_POLICY configuration. The file is re-read on every Pull so an
// operator can update it between ticks.
type jsonPolicyFile struct {
	path       string
	arity      int
	log        *zap.Logger
	lastSample Sample
}

// NewJSONPolicyFile constructs a Sampler that reads path on every Pull and
// validates the decoded array's length against arity (the agent's declared
// policy width); a mismatch is the `invalid` condition spec §9's Endpoint
// TODO asks to resolve explicitly rather than silently truncate or pad.
func NewJSONPolicyFile(path string, arity int, log *zap.Logger) Sampler {
	if log == nil {
		log = zap.NewNop()
	}
	return &jsonPolicyFile{path: path, arity: arity, log: log}
}

func (j *jsonPolicyFile) Pull(ctx context.Context) (Policy, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		return Policy{}, gerr.Wrap(gerr.KindIO, "manager.go", 0, err, "reading policy file %s", j.path)
	}
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return Policy{}, gerr.Wrap(gerr.KindFileParse, "manager.go", 0, err, "parsing policy file %s", j.path)
	}
	if len(values) != j.arity {
		return Policy{}, gerr.New(gerr.KindInvalidArgument, "manager.go", 0,
			"policy file %s has %d values, agent declares arity %d: invalid", j.path, len(values), j.arity)
	}
	return Policy{Values: values}, nil
}

func (j *jsonPolicyFile) Push(ctx context.Context, s Sample) error {
	j.lastSample = s
	metrics.SetRootSample(s.Values)
	j.log.Debug("root sample pushed", zap.Int("width", len(s.Values)))
	return nil
}

// shmemEndpoint implements Sampler over the policy/endpoint-sample shmem
// cell pair, the GEOPM_SHMKEY configuration.
type shmemEndpoint struct {
	policyCell *shmem.Cell
	sampleCell *shmem.Cell
}

// NewSharedMemoryEndpoint constructs a Sampler over an already-mapped
// policy cell (read) and endpoint-sample cell (write).
func NewSharedMemoryEndpoint(policyCell, sampleCell *shmem.Cell) Sampler {
	return &shmemEndpoint{policyCell: policyCell, sampleCell: sampleCell}
}

func (s *shmemEndpoint) Pull(ctx context.Context) (Policy, error) {
	values, updated, err := s.policyCell.Read(true)
	if err != nil {
		return Policy{}, err
	}
	if !updated {
		return Policy{}, gerr.New(gerr.KindAppStalled, "manager.go", 0, "policy cell has no new value")
	}
	return Policy{Values: values}, nil
}

func (s *shmemEndpoint) Push(ctx context.Context, sample Sample) error {
	return s.sampleCell.Write(sample.Values)
}
