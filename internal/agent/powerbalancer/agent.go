package powerbalancer

import (
	"fmt"
	"math"

	"github.com/geopm/geopmd/internal/agent"
	"github.com/geopm/geopmd/internal/gerr"
	"github.com/geopm/geopmd/internal/platformio"
)

// sample vector layout, both leaf->parent and interior ascend.
const (
	sampleRuntime = 0
	sampleSlack   = 1
)

// policy vector layout, both parent->leaf and interior descend.
const (
	policyCap    = 0
	policyTarget = 1
)

// PlatformBinding is the leaf-only wiring between the Balancer and this
// node's PlatformIO batch: which control receives the power limit, and
// where the completed-epoch runtime comes from. Epoch accounting lives in
// ApplicationIO, not PlatformIO, so the Controller feeds it in via
// RecordEpochRuntime rather than this agent reaching across packages.
type PlatformBinding struct {
	PIO               *platformio.PlatformIO
	PowerLimitControl platformio.Handle
}

// Agent implements agent.Agent on top of a Balancer, per spec §4.4's
// PowerBalancer reference. The same value is used whether this node is
// interior (only Ascend/Descend are called), leaf (all methods are
// called), or both.
type Agent struct {
	bal     *Balancer
	binding *PlatformBinding // nil for an interior-only instance
	waitFn  func()
}

// NewLeaf constructs a PowerBalancer agent bound to a PlatformIO power
// control, for use at tree level 0.
func NewLeaf(cfg Config, initialCap float64, binding PlatformBinding, wait func()) *Agent {
	return &Agent{bal: New(cfg, initialCap), binding: &binding, waitFn: wait}
}

// NewInterior constructs a PowerBalancer agent for an interior level: it
// only ever has Ascend/Descend called on it, so it carries no PlatformIO
// binding and no local Balancer state of its own.
func NewInterior() *Agent {
	return &Agent{}
}

// Balancer exposes the underlying state machine, e.g. for the Controller to
// call RecordEpochRuntime/SetTarget as epochs complete and the observe
// phase's target arrives.
func (a *Agent) Balancer() *Balancer { return a.bal }

// Descend implements the interior broadcast default plus the leaf-level
// cap/target bootstrapping: policyIn is [cap, target]; every child gets an
// identical copy (spec §4.4: "C_child = C_parent... the tree has already
// been balanced to ppn-1").
func (a *Agent) Descend(policyIn []float64, policiesOut [][]float64) {
	for _, out := range policiesOut {
		copy(out, policyIn)
	}
}

// Ascend implements the interior aggregation rule: element-wise max of
// reported runtimes, sum of slack.
func (a *Agent) Ascend(samplesIn [][]float64, sampleOut []float64) {
	maxRuntime := math.NaN()
	var totalSlack float64
	anySlack := false
	for _, s := range samplesIn {
		if len(s) <= sampleRuntime || len(s) <= sampleSlack {
			continue
		}
		if !math.IsNaN(s[sampleRuntime]) {
			if math.IsNaN(maxRuntime) || s[sampleRuntime] > maxRuntime {
				maxRuntime = s[sampleRuntime]
			}
		}
		if !math.IsNaN(s[sampleSlack]) {
			totalSlack += s[sampleSlack]
			anySlack = true
		}
	}
	sampleOut[sampleRuntime] = maxRuntime
	if anySlack {
		sampleOut[sampleSlack] = totalSlack
	} else {
		sampleOut[sampleSlack] = math.NaN()
	}
}

// AdjustPlatform implements step 1 (cap update) at the leaf: policyIn is
// [cap, target]. A changed cap resets the Balancer; in either case the
// current target (if any) is applied and the limit is staged for write.
func (a *Agent) AdjustPlatform(policyIn []float64) error {
	if a.binding == nil {
		return gerr.New(gerr.KindLogic, "agent.go", 0, "AdjustPlatform called on a non-leaf PowerBalancer agent")
	}
	if len(policyIn) <= policyTarget {
		return gerr.New(gerr.KindInvalidArgument, "agent.go", 0, "power policy vector too short: %v", policyIn)
	}
	newCap := policyIn[policyCap]
	if math.IsNaN(newCap) {
		return gerr.New(gerr.KindInvalidArgument, "agent.go", 0, "power cap not ready")
	}
	if a.bal.cap != newCap {
		a.bal.SetCap(newCap)
	}
	if target := policyIn[policyTarget]; !math.IsNaN(target) {
		a.bal.SetTarget(target)
	}
	a.bal.Tick()
	return a.binding.PIO.Adjust(a.binding.PowerLimitControl, a.bal.PowerLimit())
}

// SamplePlatform implements steps 4 and 7 at the leaf: the runtime estimate
// (NaN until stable) and the current slack.
func (a *Agent) SamplePlatform(sampleOut []float64) {
	if a.bal == nil {
		return
	}
	sampleOut[sampleRuntime] = a.bal.RuntimeEstimate()
	sampleOut[sampleSlack] = a.bal.PowerSlack()
}

// RecordEpochRuntime feeds one completed epoch's runtime into the leaf
// Balancer; the Controller calls this once per tick, after
// ApplicationIO's update, with the most recently completed epoch's runtime
// (nothing is fed before the first epoch completes), so one epoch lasting
// several ticks is recorded once per tick (spec §4.4 step 2, bridged
// across the ApplicationIO/Agent boundary since epoch detection lives in
// ApplicationIO, not PlatformIO).
func (a *Agent) RecordEpochRuntime(r float64) {
	if a.bal != nil {
		a.bal.RecordEpochRuntime(r)
	}
}

func (a *Agent) Wait() {
	if a.waitFn != nil {
		a.waitFn()
	}
}

func (a *Agent) PolicyNames() []string { return []string{"POWER_CAP", "POWER_TARGET_RUNTIME"} }
func (a *Agent) SampleNames() []string { return []string{"EPOCH_RUNTIME", "POWER_SLACK"} }

func (a *Agent) ReportHeader() map[string]string {
	return map[string]string{"Agent": "power_balancer"}
}

func (a *Agent) ReportNode() map[string]string {
	if a.bal == nil {
		return nil
	}
	return map[string]string{
		"power_limit": fmt.Sprintf("%.3f", a.bal.PowerLimit()),
		"power_slack": fmt.Sprintf("%.3f", a.bal.PowerSlack()),
	}
}

func (a *Agent) ReportRegion(uint64) map[string]string { return nil }

func (a *Agent) TraceColumns() []string { return []string{"POWER_LIMIT", "POWER_SLACK"} }

// TraceValues reports this tick's values for the columns TraceColumns
// declares, letting the Controller emit a real trace row instead of
// placeholder NaNs. Returns nil for an interior-only instance.
func (a *Agent) TraceValues() []float64 {
	if a.bal == nil {
		return nil
	}
	return []float64{a.bal.PowerLimit(), a.bal.PowerSlack()}
}

var _ agent.Agent = (*Agent)(nil)
