package platformio

import (
	"math"

	"go.uber.org/zap"

	"github.com/geopm/geopmd/internal/gerr"
)

// Handle identifies a pushed signal or control.
type Handle int

// Control accepts a double-valued setting and, on write_batch, commits it
// via a one-shot MSR or powercap write.
type Control interface {
	Write(hw HardwareIO, value float64) error
}

// RawControl writes value (after inverse-scaling) into an MSR field.
type RawControl struct {
	CPU       int
	MSROffset uint64
	BeginBit  int
	EndBit    int
	Scalar    float64
}

func (c RawControl) Write(hw HardwareIO, value float64) error {
	raw, err := hw.ReadMSR(c.CPU, c.MSROffset)
	if err != nil {
		return err
	}
	width := c.EndBit - c.BeginBit + 1
	mask := uint64(1)<<uint(width) - 1
	field := uint64(value/c.Scalar) & mask
	cleared := raw &^ (mask << uint(c.BeginBit))
	raw = cleared | (field << uint(c.BeginBit))
	return hw.WriteMSR(c.CPU, c.MSROffset, raw)
}

type pushedSignal struct {
	name   string
	sig    Signal
	sample float64
}

type pushedControl struct {
	name     string
	ctl      Control
	staged   float64
	adjusted bool
}

// PlatformIO is the batched signal/control boundary described in spec §4.1.
type PlatformIO struct {
	hw  HardwareIO
	log *zap.Logger

	signals  []*pushedSignal
	controls []*pushedControl

	hasRead    bool
	hasWritten bool

	regions *RegionAccumulator
}

// New constructs a PlatformIO bound to hw. log may be nil.
func New(hw HardwareIO, log *zap.Logger) *PlatformIO {
	if log == nil {
		log = zap.NewNop()
	}
	return &PlatformIO{hw: hw, log: log, regions: newRegionAccumulator()}
}

// PushSignal registers interest in a signal, returning a stable handle.
// Fails with KindRuntime("after-read") if called after the first ReadBatch.
func (p *PlatformIO) PushSignal(name string, sig Signal) (Handle, error) {
	if p.hasRead {
		return 0, gerr.New(gerr.KindRuntime, "platformio.go", 0, "push_signal(%s) after first read_batch", name)
	}
	p.signals = append(p.signals, &pushedSignal{name: name, sig: sig, sample: math.NaN()})
	return Handle(len(p.signals) - 1), nil
}

// PushControl registers interest in a control. Fails with
// KindRuntime("after-adjust") once WriteBatch has been called.
func (p *PlatformIO) PushControl(name string, ctl Control) (Handle, error) {
	if p.hasWritten {
		return 0, gerr.New(gerr.KindRuntime, "platformio.go", 0, "push_control(%s) after first write_batch", name)
	}
	p.controls = append(p.controls, &pushedControl{name: name, ctl: ctl})
	return Handle(len(p.controls) - 1), nil
}

// ReadBatch issues one hardware batch transaction: every pushed signal is
// refreshed in a single pass.
func (p *PlatformIO) ReadBatch() error {
	for _, s := range p.signals {
		v, err := s.sig.Read(p.hw)
		if err != nil {
			return gerr.Wrap(gerr.KindIO, "platformio.go", 0, err, "read_batch failed for signal %s", s.name)
		}
		s.sample = v
	}
	p.hasRead = true
	p.regions.observe(p.signals)
	return nil
}

// Sample returns the value from the most recent ReadBatch.
func (p *PlatformIO) Sample(h Handle) (float64, error) {
	if !p.hasRead {
		return math.NaN(), gerr.New(gerr.KindRuntime, "platformio.go", 0, "sample() before any read_batch")
	}
	if int(h) < 0 || int(h) >= len(p.signals) {
		return math.NaN(), gerr.New(gerr.KindInvalidArgument, "platformio.go", 0, "invalid signal handle %d", h)
	}
	return p.signals[h].sample, nil
}

// ReadSignal is the one-shot variant bypassing the batch, for setup/teardown.
func (p *PlatformIO) ReadSignal(h Handle) (float64, error) {
	if int(h) < 0 || int(h) >= len(p.signals) {
		return math.NaN(), gerr.New(gerr.KindInvalidArgument, "platformio.go", 0, "invalid signal handle %d", h)
	}
	return p.signals[h].sig.Read(p.hw)
}

// Adjust stages a control setting; no hardware write occurs until WriteBatch.
func (p *PlatformIO) Adjust(h Handle, value float64) error {
	if int(h) < 0 || int(h) >= len(p.controls) {
		return gerr.New(gerr.KindInvalidArgument, "platformio.go", 0, "invalid control handle %d", h)
	}
	c := p.controls[h]
	c.staged = value
	c.adjusted = true
	return nil
}

// WriteBatch commits every staged control in one hardware transaction.
// Fails with KindRuntime("incomplete-adjust") if any pushed control was
// never adjusted.
func (p *PlatformIO) WriteBatch() error {
	for _, c := range p.controls {
		if !c.adjusted {
			return gerr.New(gerr.KindRuntime, "platformio.go", 0, "write_batch: control %s never adjusted", c.name)
		}
	}
	for _, c := range p.controls {
		if err := c.ctl.Write(p.hw, c.staged); err != nil {
			return gerr.Wrap(gerr.KindIO, "platformio.go", 0, err, "write_batch failed for control %s", c.name)
		}
	}
	p.hasWritten = true
	return nil
}

// WriteControl is the one-shot variant bypassing the batch.
func (p *PlatformIO) WriteControl(h Handle, value float64) error {
	if int(h) < 0 || int(h) >= len(p.controls) {
		return gerr.New(gerr.KindInvalidArgument, "platformio.go", 0, "invalid control handle %d", h)
	}
	return p.controls[h].ctl.Write(p.hw, value)
}

// PushRegionSignalTotal binds a counter signal to the currently entered
// region so the delta between entry and exit is attributed to that region,
// spec §4.1.
func (p *PlatformIO) PushRegionSignalTotal(h Handle) error {
	if int(h) < 0 || int(h) >= len(p.signals) {
		return gerr.New(gerr.KindInvalidArgument, "platformio.go", 0, "invalid signal handle %d", h)
	}
	p.regions.trackHandle(h)
	return nil
}

// EnterRegion/ExitRegion are called by the Controller each tick from the
// entry/exit list ApplicationIO produced, so PushRegionSignalTotal's bound
// counters can attribute the delta since entry to regionID.
func (p *PlatformIO) EnterRegion(regionID uint64) { p.regions.enter(regionID, p.signals) }

func (p *PlatformIO) ExitRegion(regionID uint64) { p.regions.exit(regionID, p.signals) }

// RegionTotal returns the accumulated delta of the bound counter for a
// region (spec scenario 2: per-region energy accounting).
func (p *PlatformIO) RegionTotal(h Handle, regionID uint64) float64 {
	return p.regions.total(h, regionID)
}
