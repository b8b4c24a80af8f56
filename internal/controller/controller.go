// Package controller implements the fixed-order tick state machine of spec
// §4.5: walk_down, a signal check, application_io.update, walk_up, wait.
// The lifecycle state machine (uninitialized -> running -> stopping ->
// stopped) and its context.WithCancel + signal-goroutine shutdown path are
// grounded on the teacher's kernel/lifecycle.go Kernel type.
package controller

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/geopm/geopmd/internal/agent"
	"github.com/geopm/geopmd/internal/appio"
	"github.com/geopm/geopmd/internal/gerr"
	"github.com/geopm/geopmd/internal/manager"
	"github.com/geopm/geopmd/internal/metrics"
	"github.com/geopm/geopmd/internal/platformio"
	"github.com/geopm/geopmd/internal/report"
	"github.com/geopm/geopmd/internal/trace"
	"github.com/geopm/geopmd/internal/treecomm"
)

// State is the Controller's own lifecycle, distinct from the per-tick
// walk_down/walk_up state machine.
type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StateStopping
	StateStopped
)

var stateNames = map[State]string{
	StateUninitialized: "UNINITIALIZED",
	StateRunning:       "RUNNING",
	StateStopping:      "STOPPING",
	StateStopped:       "STOPPED",
}

// RunMode selects how the Controller's tick loop is hosted: a dedicated
// process (the traditional ppn-1 extra rank) or a goroutine inside a larger
// process (an all-in-one demo binary or test harness).
type RunMode int

const (
	RunModeProcess RunMode = iota
	RunModeGoroutine
)

// epochSink is satisfied by an Agent that wants completed-epoch runtimes
// fed into it (powerbalancer.Agent), bridging ApplicationIO's epoch
// detection into the Agent boundary without widening agent.Agent itself.
type epochSink interface {
	RecordEpochRuntime(seconds float64)
}

// Config bundles everything the Controller needs beyond its own tick
// logic: the per-level agents, the tree this node participates in, its
// platform and application I/O, and where reports/traces go.
type Config struct {
	Host       string
	Version    string
	Profile    string
	TickPeriod time.Duration
	Mode       RunMode

	PIO    *platformio.PlatformIO
	AppIO  *appio.ApplicationIO
	Tree   *treecomm.Tree
	Agents []agent.Agent // agents[l] governs tree.Controlled[l]; agents[0] is always also the leaf agent (AdjustPlatform/SamplePlatform), even when Tree.Controlled is empty

	// Manager is non-nil only at the tree's global root.
	Manager manager.Sampler

	SampleArity int
	PolicyArity int

	// TraceSignals names the PlatformIO handles backing spec §6's fixed
	// ENERGY_PACKAGE/POWER_PACKAGE/FREQUENCY trace columns and per-region
	// energy/frequency accounting. nil when no such signals were pushed
	// (e.g. a test exercising only the agent's own trace columns).
	TraceSignals *TraceSignals
	// StickerFrequencyHz converts a FREQUENCY sample into percent-of-
	// sticker for AverageRegionFrequency; 0 disables the conversion.
	StickerFrequencyHz float64

	Tracer *trace.Writer
	Log    *zap.Logger
}

// TraceSignals names the PlatformIO handles backing spec §6's fixed trace
// columns and per-region energy/frequency accounting (see Config).
type TraceSignals struct {
	EnergyPackage platformio.Handle
	PowerPackage  platformio.Handle
	Frequency     platformio.Handle
}

// Controller runs the fixed-order tick loop described in spec §4.5.
type Controller struct {
	cfg Config
	log *zap.Logger

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	fatalSignal atomic.Bool

	report        *report.Writer
	startTime     time.Time
	currentRegion uint64
	lastBytesSent uint64
}

// traceValueSource is satisfied by an Agent that can report its own current
// TraceColumns() values (powerbalancer.Agent), letting emitTraceRow carry
// real data instead of placeholder NaNs.
type traceValueSource interface {
	TraceValues() []float64
}

// New constructs a Controller ready for Run.
func New(cfg Config) *Controller {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if len(cfg.Agents) == 0 {
		panic("controller: at least one agent (the leaf agent) is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	runID := uuid.NewString()
	rw := report.NewWriter(cfg.Version, cfg.Profile)
	rw.SetRunID(runID)
	c := &Controller{
		cfg:    cfg,
		log:    cfg.Log.Named("controller").With(zap.String("host", cfg.Host), zap.String("run_id", runID)),
		ctx:    ctx,
		cancel: cancel,
		report: rw,
	}
	c.state.Store(int32(StateUninitialized))
	return c
}

func (c *Controller) isRoot() bool { return c.cfg.Manager != nil }

func (c *Controller) State() State { return State(c.state.Load()) }
func (c *Controller) StateName() string { return stateNames[c.State()] }

// Run installs signal handling and drives ticks until application shutdown
// is observed, a fatal signal arrives, or ctx is canceled. It returns the
// rendered report.
func (c *Controller) Run(ctx context.Context) (string, error) {
	c.state.Store(int32(StateRunning))
	c.startTime = time.Now()
	defer c.state.Store(int32(StateStopped))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			c.fatalSignal.Store(true)
			c.cancel()
		case <-ctx.Done():
			c.cancel()
		case <-c.ctx.Done():
		}
	}()

	for {
		if c.cfg.AppIO.DoShutdown() {
			break
		}
		if c.fatalSignal.Load() {
			return "", gerr.New(gerr.KindRuntime, "controller.go", 0, "controller stopped by signal")
		}
		select {
		case <-c.ctx.Done():
			return "", gerr.New(gerr.KindRuntime, "controller.go", 0, "controller context canceled")
		default:
		}

		start := time.Now()
		if err := c.Tick(c.ctx); err != nil {
			return "", err
		}
		metrics.TickLatency.Observe(time.Since(start).Seconds())
	}

	c.state.Store(int32(StateStopping))
	return c.Generate(), nil
}

// Tick executes one full walk_down / signal-check / update / walk_up / wait
// cycle (spec §4.5).
func (c *Controller) Tick(ctx context.Context) error {
	if _, err := c.walkDown(ctx); err != nil {
		return err
	}

	if c.fatalSignal.Load() {
		return gerr.New(gerr.KindRuntime, "controller.go", 0, "fatal signal observed mid-tick")
	}

	if err := c.cfg.AppIO.Update(nil); err != nil {
		return err
	}
	c.feedCompletedEpoch()

	if err := c.walkUp(ctx); err != nil {
		return err
	}

	c.cfg.Agents[0].Wait()
	return nil
}

func (c *Controller) feedCompletedEpoch() {
	sink, ok := c.cfg.Agents[0].(epochSink)
	if !ok {
		return
	}
	if r := c.cfg.AppIO.TotalEpochRuntime(); r > 0 {
		sink.RecordEpochRuntime(r.Seconds())
	}
}

// walkDown implements spec §4.5 step 1. It returns ok=false (no error) when
// the policy this node depends on (from ManagerIO or a parent level) is not
// yet ready; the Controller simply retries on the next tick.
func (c *Controller) walkDown(ctx context.Context) (bool, error) {
	N := len(c.cfg.Tree.Controlled) - 1

	var policy []float64
	var ready bool
	if c.isRoot() {
		p, err := c.cfg.Manager.Pull(ctx)
		if err != nil {
			if gerr.KindOf(err) == gerr.KindAppStalled {
				return false, nil
			}
			return false, err
		}
		policy, ready = p.Values, true
	} else if N >= 0 {
		policy, ready = c.cfg.Tree.Controlled[N].ReceiveDown()
	} else {
		policy, ready = c.cfg.Tree.ReceiveDown0()
	}
	if !ready {
		return false, nil
	}

	for l := N - 1; l >= 0; l-- {
		level := c.cfg.Tree.Controlled[l]
		childPolicies := make([][]float64, level.NumChildren)
		for i := range childPolicies {
			childPolicies[i] = make([]float64, len(policy))
		}
		c.cfg.Agents[l].Descend(policy, childPolicies)
		level.SendDown(childPolicies)

		if l == 0 {
			policy, ready = c.cfg.Tree.ReceiveDown0()
		} else {
			policy, ready = c.cfg.Tree.Controlled[l-1].ReceiveDown()
		}
		if !ready {
			return false, nil
		}
	}

	if err := c.cfg.Agents[0].AdjustPlatform(policy); err != nil {
		return false, err
	}
	return true, c.cfg.PIO.WriteBatch()
}

// walkUp implements spec §4.5 step 4.
func (c *Controller) walkUp(ctx context.Context) error {
	if err := c.cfg.PIO.ReadBatch(); err != nil {
		return err
	}
	c.driveRegionEvents()
	c.emitTraceRow()

	sample := make([]float64, c.cfg.SampleArity)
	c.cfg.Agents[0].SamplePlatform(sample)

	N := len(c.cfg.Tree.Controlled) - 1
	if N < 0 {
		if c.isRoot() {
			return c.cfg.Manager.Push(ctx, manager.Sample{Values: sample})
		}
		c.cfg.Tree.SendUp0(sample)
		return nil
	}

	for l := 0; l <= N; l++ {
		level := c.cfg.Tree.Controlled[l]
		level.SubmitOwn(sample)
		childSamples, ready := level.ReceiveUp()
		if !ready {
			return nil
		}
		out := make([]float64, len(sample))
		c.cfg.Agents[l].Ascend(childSamples, out)
		sample = out
	}

	sent := c.cfg.Tree.BytesSent()
	metrics.TreeBytesSent.Add(float64(sent - c.lastBytesSent))
	c.lastBytesSent = sent

	if c.isRoot() {
		return c.cfg.Manager.Push(ctx, manager.Sample{Values: sample})
	}
	c.cfg.Tree.Controlled[N].SendUp(sample)
	return nil
}

// driveRegionEvents replays this tick's ApplicationIO entry/exit list
// through PlatformIO's region accumulator (spec §4.1's
// push_region_signal_total) and folds a frequency reading into each exited
// region's running average, then clears the list ApplicationIO produced it
// into (spec §4.2's Controller-drains-the-list contract).
func (c *Controller) driveRegionEvents() {
	for _, ev := range c.cfg.AppIO.RegionEntryExit() {
		switch ev.Kind {
		case appio.EventEnter:
			c.cfg.PIO.EnterRegion(uint64(ev.Region))
			c.currentRegion = uint64(ev.Region)
		case appio.EventExit:
			c.cfg.PIO.ExitRegion(uint64(ev.Region))
			c.recordRegionFrequency(ev.Region)
		}
	}
	c.cfg.AppIO.ClearRegionEntryExit()
}

func (c *Controller) recordRegionFrequency(region appio.RegionID) {
	if c.cfg.TraceSignals == nil || c.cfg.StickerFrequencyHz <= 0 {
		return
	}
	hz, err := c.cfg.PIO.Sample(c.cfg.TraceSignals.Frequency)
	if err != nil {
		return
	}
	c.cfg.AppIO.RecordRegionFrequency(region, 100*hz/c.cfg.StickerFrequencyHz)
}

func (c *Controller) emitTraceRow() {
	if c.cfg.Tracer == nil {
		return
	}
	cols := c.cfg.Agents[0].TraceColumns()
	var agentValues []float64
	if src, ok := c.cfg.Agents[0].(traceValueSource); ok {
		agentValues = src.TraceValues()
	}
	if len(agentValues) != len(cols) {
		agentValues = make([]float64, len(cols))
		for i := range agentValues {
			agentValues[i] = math.NaN()
		}
	}
	row := trace.Row{
		TimeSeconds:  time.Since(c.startTime).Seconds(),
		RegionID:     c.currentRegion,
		AgentColumns: agentValues,
	}
	if ts := c.cfg.TraceSignals; ts != nil {
		row.EnergyPackage = c.samplePIO(ts.EnergyPackage)
		row.PowerPackage = c.samplePIO(ts.PowerPackage)
		row.Frequency = c.samplePIO(ts.Frequency)
	}
	if err := c.cfg.Tracer.Write(row); err != nil {
		c.log.Warn("trace write failed", zap.Error(err))
	}
}

// samplePIO reads a PlatformIO signal for the trace row, falling back to 0
// if the handle was never pushed (TraceSignals left zero-valued).
func (c *Controller) samplePIO(h platformio.Handle) float64 {
	v, err := c.cfg.PIO.Sample(h)
	if err != nil {
		return 0
	}
	return v
}

// Generate implements spec §4.5's post-loop report generation: this node's
// own region stats are rendered as one NodeReport; a full multi-node run
// gathers peer reports externally (via GatherReport) before calling
// Render.
func (c *Controller) Generate() string {
	c.report.AddNode(c.localNodeReport())
	c.report.SetAgentHeader(c.cfg.Agents[0].ReportHeader())
	c.report.SetControllerBandwidth(c.cfg.Tree.BytesSent())
	return c.report.Render()
}

// GatherReport folds a peer's NodeReport into the root's accumulating
// Writer, the role TreeComm's upward path plays for report assembly (spec
// §4.7): the root calls this once per peer after collecting their
// localNodeReport over whatever side channel the deployment uses (a
// dedicated report-gather tree pass, out of scope for the tick loop
// itself).
func (c *Controller) GatherReport(n report.NodeReport) {
	c.report.AddNode(n)
}

func (c *Controller) localNodeReport() report.NodeReport {
	n := report.NodeReport{
		Host:           c.cfg.Host,
		Runtime:        c.cfg.AppIO.TotalAppRuntime(),
		MemoryHWMBytes: memoryHWMBytes(),
	}
	for _, region := range c.cfg.AppIO.RegionNameSet() {
		line := report.RegionLine{
			Name:             fmt.Sprintf("0x%x", uint64(region)),
			Runtime:          c.cfg.AppIO.TotalRegionRuntime(region),
			MPIRuntime:       c.cfg.AppIO.TotalMPIRuntime(region),
			Count:            c.cfg.AppIO.TotalCount(region),
			FrequencyPercent: c.cfg.AppIO.AverageRegionFrequency(region),
		}
		if ts := c.cfg.TraceSignals; ts != nil {
			line.EnergyJoules = c.cfg.PIO.RegionTotal(ts.EnergyPackage, uint64(region))
		}
		n.Regions = append(n.Regions, line)
	}
	return n
}

// memoryHWMBytes reads this process's resident-set high-water mark via
// getrusage, the figure spec §6's Application Totals block reports as
// memory-hwm-bytes.
func memoryHWMBytes() uint64 {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0
	}
	return uint64(ru.Maxrss) * 1024
}

// Close cancels the Controller's internal context, used by RunModeGoroutine
// callers that need to stop a Controller hosted alongside other work in the
// same process.
func (c *Controller) Close() { c.cancel() }
