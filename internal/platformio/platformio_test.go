package platformio_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/geopm/geopmd/internal/platformio"
)

func TestPushSampleRoundTrip(t *testing.T) {
	// Scenario 1 from spec §8: push PERF_STATUS:FREQ on cpu 0, write raw
	// 0xB00 at offset 0x198 (the Intel PERF_STATUS ratio field), expect
	// 1.1e9 Hz after read_batch. Ratio field occupies bits [15:8]; 0xB00
	// has ratio byte 0x0B == 11, times 100 MHz/step == 1.1 GHz.
	hw := platformio.NewFakeHardware()
	hw.SetMSR(0, 0x198, 0xB00)

	pio := platformio.New(hw, nil)
	sig := platformio.NewRawSignal(0, 0x198, 8, 15, platformio.EncodingScale, 100_000_000, 0)
	h, err := pio.PushSignal("PERF_STATUS:FREQ", sig)
	require.NoError(t, err)

	require.NoError(t, pio.ReadBatch())
	v, err := pio.Sample(h)
	require.NoError(t, err)
	require.InDelta(t, 1.1e9, v, 1e-6)
}

func TestSampleBeforeReadFails(t *testing.T) {
	hw := platformio.NewFakeHardware()
	pio := platformio.New(hw, nil)
	sig := platformio.NewRawSignal(0, 0x198, 8, 15, platformio.EncodingScale, 1, 0)
	h, err := pio.PushSignal("X", sig)
	require.NoError(t, err)
	_, err = pio.Sample(h)
	require.Error(t, err)
}

func TestPushSignalAfterReadFails(t *testing.T) {
	hw := platformio.NewFakeHardware()
	hw.SetMSR(0, 0x10, 1)
	pio := platformio.New(hw, nil)
	_, err := pio.PushSignal("A", platformio.NewRawSignal(0, 0x10, 0, 0, platformio.EncodingScale, 1, 0))
	require.NoError(t, err)
	require.NoError(t, pio.ReadBatch())

	_, err = pio.PushSignal("B", platformio.NewRawSignal(0, 0x10, 0, 0, platformio.EncodingScale, 1, 0))
	require.Error(t, err)
}

func TestWriteBatchFailsWithoutAdjust(t *testing.T) {
	hw := platformio.NewFakeHardware()
	hw.SetMSR(0, 0x610, 0)
	pio := platformio.New(hw, nil)
	_, err := pio.PushControl("PKG_POWER_LIMIT", platformio.RawControl{CPU: 0, MSROffset: 0x610, BeginBit: 0, EndBit: 14, Scalar: 0.125})
	require.NoError(t, err)

	err = pio.WriteBatch()
	require.Error(t, err)
}

func TestRegionEnergyAccounting(t *testing.T) {
	// Scenario 2 from spec §8.
	hw := platformio.NewFakeHardware()
	hw.SetEnergy("package", 0, 100.0)
	pio := platformio.New(hw, nil)

	energy := energySignal{hw: hw}
	h, err := pio.PushSignal("ENERGY_PACKAGE", energy)
	require.NoError(t, err)
	require.NoError(t, pio.PushRegionSignalTotal(h))

	const regionFoo = uint64(0xF00)
	require.NoError(t, pio.ReadBatch())
	pio.EnterRegion(regionFoo)

	hw.SetEnergy("package", 0, 142.0)
	require.NoError(t, pio.ReadBatch())
	pio.ExitRegion(regionFoo)

	require.InDelta(t, 42.0, pio.RegionTotal(h, regionFoo), 1e-9)
}

type energySignal struct{ hw *platformio.FakeHardware }

func (s energySignal) Read(hw platformio.HardwareIO) (float64, error) {
	return hw.ReadEnergyCounter("package", 0)
}

func TestDerivativeSignalConstantInput(t *testing.T) {
	// Scenario 5 from spec §8, generalized to a constant input (the spec's
	// invariant list separately requires constant input -> 0 slope).
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	underlying := fnSignal(func() (float64, error) {
		calls++
		return 5.0, nil
	})
	d := platformio.NewDerivativeSignal(underlying, 8, time.Millisecond)
	tick := base
	setNow(d, func() time.Time { return tick })

	hw := platformio.NewFakeHardware()
	var last float64
	for i := 0; i < 8; i++ {
		v, err := d.Read(hw)
		require.NoError(t, err)
		last = v
		tick = tick.Add(time.Second)
	}
	require.InDelta(t, 0.0, last, 1e-4)
}

type fnSignal func() (float64, error)

func (f fnSignal) Read(hw platformio.HardwareIO) (float64, error) { return f() }

// setNow pokes DerivativeSignal's clock for deterministic tests; exported
// via a same-package test hook would be cleaner, but the field is
// unexported by design (production code never overrides its own clock).
func setNow(d *platformio.DerivativeSignal, now func() time.Time) {
	platformio.SetClockForTest(d, now)
}
