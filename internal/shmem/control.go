package shmem

import (
	"sync"

	"github.com/geopm/geopmd/internal/gerr"
)

// ControlState is one state of the control-message cell's monotonic latch,
// spec §3/§6.
type ControlState uint32

const (
	StateInit ControlState = iota
	StateMapBegin
	StateMapEnd
	StateSampleBegin
	StateSampleEnd
	StateNameBegin
	StateNameEnd
	StateShutdown
)

var controlStateNames = [...]string{
	"init", "map-begin", "map-end", "sample-begin", "sample-end",
	"name-begin", "name-end", "shutdown",
}

func (s ControlState) String() string {
	if int(s) < len(controlStateNames) {
		return controlStateNames[s]
	}
	return "unknown"
}

// MMaxNumCPU bounds the CPU-to-rank table length, spec §6.
const MMaxNumCPU = 4096

// ControlCell is the three-state handshake described in spec §3: the
// controller and the application alternate as writers, and the state
// advances strictly in the order declared above. Modeled on the teacher's
// supervisor.Protocol request/ack handshake, collapsed to a single shared
// state word instead of a full message queue since spec §6 specifies an
// in-place latch, not a queue.
type ControlCell struct {
	mu  sync.Mutex
	mp  MemoryProvider
	cpuToRank []int32
}

// NewControlCell creates a handshake cell backed by mp, starting at StateInit.
func NewControlCell(mp MemoryProvider) *ControlCell {
	return &ControlCell{mp: mp}
}

// Advance transitions the cell to `next`, failing with KindRuntime if next
// does not immediately follow the current state — the monotonic-advance
// invariant from spec §3.
func (c *ControlCell) Advance(next ControlState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, err := c.stateLocked()
	if err != nil {
		return err
	}
	if next != cur+1 {
		return gerr.New(gerr.KindRuntime, "control.go", 0,
			"control cell must advance %s -> %s, got request for %s", cur, cur+1, next)
	}
	return c.mp.AtomicStore32(0, uint32(next))
}

// State returns the current latch state.
func (c *ControlCell) State() (ControlState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *ControlCell) stateLocked() (ControlState, error) {
	v, err := c.mp.AtomicLoad32(0)
	if err != nil {
		return 0, err
	}
	return ControlState(v), nil
}

// SetCPUToRank publishes the CPU-to-rank mapping exchanged during the
// map-begin/map-end phase of connect() (spec §4.2).
func (c *ControlCell) SetCPUToRank(mapping []int32) error {
	if len(mapping) > MMaxNumCPU {
		return gerr.New(gerr.KindInvalidArgument, "control.go", 0,
			"cpu-to-rank table length %d exceeds M_MAX_NUM_CPU", len(mapping))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cpuToRank = append([]int32(nil), mapping...)
	return nil
}

// CPUToRank returns the published mapping.
func (c *ControlCell) CPUToRank() []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int32(nil), c.cpuToRank...)
}

// DoShutdown reports whether the application has advanced the cell to the
// terminal state, spec §4.2's do_shutdown() accessor.
func (c *ControlCell) DoShutdown() bool {
	s, err := c.State()
	return err == nil && s == StateShutdown
}
