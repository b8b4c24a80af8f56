// Command geopmctl is the controller process entrypoint: it wires
// PlatformIO, ApplicationIO, TreeComm, the configured Agent, ManagerIO and
// the report/trace writers together and runs the tick loop until the
// profiled application shuts down. Mirrors the teacher's kernel/main.go
// wiring style: environment-driven configuration, no flag parsing.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geopm/geopmd/internal/agent"
	"github.com/geopm/geopmd/internal/agent/powerbalancer"
	"github.com/geopm/geopmd/internal/appio"
	"github.com/geopm/geopmd/internal/config"
	"github.com/geopm/geopmd/internal/controller"
	"github.com/geopm/geopmd/internal/gerr"
	"github.com/geopm/geopmd/internal/logging"
	"github.com/geopm/geopmd/internal/manager"
	"github.com/geopm/geopmd/internal/metrics"
	"github.com/geopm/geopmd/internal/platformio"
	"github.com/geopm/geopmd/internal/shmem"
	"github.com/geopm/geopmd/internal/trace"
	"github.com/geopm/geopmd/internal/treecomm"
)

const (
	controlCellBase = 0
	policyCellBase  = shmem.CellSize
	sampleCellBase  = 2 * shmem.CellSize
	shmemRegionSize = 3 * shmem.CellSize

	// tickPeriod paces the control loop; spec §4.4's Wait() is where an
	// agent enforces its own tick boundary.
	tickPeriod = time.Second

	// stickerFrequencyHz is the nominal (non-turbo) package frequency the
	// FREQUENCY trace/report columns are reported as a percentage of.
	stickerFrequencyHz = 2.1e9
	perfStatusMSR      = 0x198
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(gerr.ToExitCode(err))
	}
}

func run() error {
	cfg := config.Load()

	log, err := logging.New(logging.Config{Level: logging.Info})
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	// The low-level MSR device driver is an explicit boundary this
	// repository does not implement; FakeHardware stands in as the
	// pluggable HardwareIO a real driver would satisfy.
	hw := platformio.NewFakeHardware()
	pio := platformio.New(hw, logging.Component(log, "platformio"))
	limitControl, err := pio.PushControl("PKG_POWER_LIMIT",
		platformio.RawControl{CPU: 0, MSROffset: 0x610, BeginBit: 0, EndBit: 14, Scalar: 0.125})
	if err != nil {
		return err
	}

	// Spec §6's fixed trace/report columns: package energy (also the
	// source PushRegionSignalTotal attributes per-region deltas from),
	// its derivative for instantaneous package power, and the core
	// frequency ratio field.
	hw.SetEnergy("package", 0, 0)
	energySig := platformio.EnergySignal{Domain: "package", DomainIndex: 0}
	energyHandle, err := pio.PushSignal("ENERGY_PACKAGE", energySig)
	if err != nil {
		return err
	}
	if err := pio.PushRegionSignalTotal(energyHandle); err != nil {
		return err
	}
	powerHandle, err := pio.PushSignal("POWER_PACKAGE", platformio.NewDerivativeSignal(energySig, 8, 0))
	if err != nil {
		return err
	}
	hw.SetMSR(0, perfStatusMSR, 21<<8) // 21 * 100MHz == stickerFrequencyHz
	freqSig := platformio.NewRawSignal(0, perfStatusMSR, 8, 15, platformio.EncodingScale, 100e6, 8)
	freqHandle, err := pio.PushSignal("FREQUENCY", freqSig)
	if err != nil {
		return err
	}
	traceSignals := &controller.TraceSignals{
		EnergyPackage: energyHandle,
		PowerPackage:  powerHandle,
		Frequency:     freqHandle,
	}

	mp := shmem.NewMemoryBuffer(shmemRegionSize)
	controlCell := shmem.NewControlCell(mp)
	aio := appio.New(controlCell, nil, logging.Component(log, "appio"))
	if err := aio.Connect(cfg.ProfileTimeout, nil); err != nil {
		return err
	}

	registry := agent.NewRegistry()
	registry.Register("power_balancer", func(map[string]string) (agent.Agent, error) {
		binding := powerbalancer.PlatformBinding{PIO: pio, PowerLimitControl: limitControl}
		wait := func() { time.Sleep(tickPeriod) }
		return powerbalancer.NewLeaf(powerbalancer.DefaultConfig(), 0, binding, wait), nil
	})
	activeAgent, err := registry.Get(cfg.AgentName, nil)
	if err != nil {
		return err
	}

	tree := treecomm.NewSingleNodeTree()

	sampler, err := buildSampler(cfg, mp, len(activeAgent.PolicyNames()), len(activeAgent.SampleNames()))
	if err != nil {
		return err
	}

	metrics.Register(prometheus.DefaultRegisterer)
	go serveMetrics()

	var tracer *trace.Writer
	if cfg.TracePath != "" {
		f, err := os.Create(cfg.TracePath)
		if err != nil {
			return gerr.Wrap(gerr.KindIO, "main.go", 0, err, "creating trace file %s", cfg.TracePath)
		}
		defer f.Close() //nolint:errcheck
		tracer = trace.New(f, activeAgent.TraceColumns())
	}

	host, _ := os.Hostname()
	ctrl := controller.New(controller.Config{
		Host:               host,
		Version:            "1.0.0",
		Profile:            cfg.PolicyPath,
		PIO:                pio,
		AppIO:              aio,
		Tree:               tree,
		Agents:             []agent.Agent{activeAgent},
		Manager:            sampler,
		SampleArity:        len(activeAgent.SampleNames()),
		PolicyArity:        len(activeAgent.PolicyNames()),
		TraceSignals:       traceSignals,
		StickerFrequencyHz: stickerFrequencyHz,
		Tracer:             tracer,
		Log:                log,
	})

	reportText, err := ctrl.Run(context.Background())
	if err != nil {
		return err
	}

	if tracer != nil {
		if err := tracer.Flush(); err != nil {
			return err
		}
	}

	if cfg.ReportPath != "" {
		return os.WriteFile(cfg.ReportPath, []byte(reportText), 0o644)
	}
	fmt.Print(reportText)
	return nil
}

// buildSampler picks the ManagerIO/Endpoint implementation per spec §6:
// GEOPM_POLICY selects the JSON file variant, otherwise the shared-memory
// cell pair is used.
func buildSampler(cfg config.Config, mp *shmem.MemoryBuffer, policyArity, sampleArity int) (manager.Sampler, error) {
	if cfg.PolicyPath != "" {
		return manager.NewJSONPolicyFile(cfg.PolicyPath, policyArity, nil), nil
	}
	policyCell, err := shmem.NewCell(mp, policyCellBase, policyArity)
	if err != nil {
		return nil, err
	}
	sampleCell, err := shmem.NewCell(mp, sampleCellBase, sampleArity)
	if err != nil {
		return nil, err
	}
	return manager.NewSharedMemoryEndpoint(policyCell, sampleCell), nil
}

func serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	_ = http.ListenAndServe(":8080", mux) //nolint:errcheck
}
