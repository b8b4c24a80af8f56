// Package platformio implements the uniform signal/control abstraction over
// MSR batches and energy counters described in spec §4.1: push a handle,
// batch-read or batch-write, sample or adjust by handle.
//
// Grounded on the teacher's kernel/threads/sab package: HardwareIO plays the
// same role sab.MemoryProvider plays for shared memory — a narrow interface
// separating "what a signal means" from "how its bytes are actually
// fetched", so a fake implementation can stand in for tests exactly the
// way sab/hal_memory.go does for SAB. Raw signals are built directly as
// RawSignal values; there is no declarative signal table.
package platformio

import "github.com/geopm/geopmd/internal/gerr"

// HardwareIO is the narrow boundary to the MSR device driver and the
// powercap/RAPL energy counters. FakeHardware below is the only
// implementation in this repository; it backs the tests and cmd/geopmctl.
// No implementation over /dev/cpu/*/msr or /sys/class/powercap/* exists.
type HardwareIO interface {
	// ReadMSR returns the full 64-bit content of the MSR at offset on cpu.
	ReadMSR(cpu int, offset uint64) (uint64, error)
	// WriteMSR commits a full 64-bit MSR write.
	WriteMSR(cpu int, offset uint64, value uint64) error
	// ReadEnergyCounter returns the current RAPL energy counter (joules)
	// for the given domain ("package", "dram", ...) and domain index.
	ReadEnergyCounter(domain string, domainIndex int) (float64, error)
	// NumDomains returns how many domain indices exist for domain type
	// (e.g. number of packages on the node).
	NumDomains(domainType string) int
}

// FakeHardware is an in-memory HardwareIO for tests, the platformio
// analogue of sab.MemoryBuffer: a deterministic stand-in a test can poke
// directly via SetMSR/SetEnergy before exercising PlatformIO.
type FakeHardware struct {
	msr    map[msrKey]uint64
	energy map[energyKey]float64
	dom    map[string]int
}

type msrKey struct {
	cpu    int
	offset uint64
}

type energyKey struct {
	domain string
	idx    int
}

func NewFakeHardware() *FakeHardware {
	return &FakeHardware{
		msr:    make(map[msrKey]uint64),
		energy: make(map[energyKey]float64),
		dom:    map[string]int{"cpu": 1, "package": 1, "board": 1},
	}
}

func (f *FakeHardware) SetMSR(cpu int, offset uint64, value uint64) {
	f.msr[msrKey{cpu, offset}] = value
}

func (f *FakeHardware) SetEnergy(domain string, idx int, joules float64) {
	f.energy[energyKey{domain, idx}] = joules
}

func (f *FakeHardware) SetNumDomains(domainType string, n int) { f.dom[domainType] = n }

func (f *FakeHardware) ReadMSR(cpu int, offset uint64) (uint64, error) {
	v, ok := f.msr[msrKey{cpu, offset}]
	if !ok {
		return 0, gerr.New(gerr.KindIO, "hardware.go", 0, "no fake MSR value set for cpu=%d offset=0x%x", cpu, offset)
	}
	return v, nil
}

func (f *FakeHardware) WriteMSR(cpu int, offset uint64, value uint64) error {
	f.msr[msrKey{cpu, offset}] = value
	return nil
}

func (f *FakeHardware) ReadEnergyCounter(domain string, domainIndex int) (float64, error) {
	v, ok := f.energy[energyKey{domain, domainIndex}]
	if !ok {
		return 0, gerr.New(gerr.KindIO, "hardware.go", 0, "no fake energy value set for %s[%d]", domain, domainIndex)
	}
	return v, nil
}

func (f *FakeHardware) NumDomains(domainType string) int { return f.dom[domainType] }
