// Package report renders the fixed text report format of spec §6: a
// header line, Profile/Agent lines, one block per host listing each
// region's runtime/energy/frequency/mpi-runtime/count, and a closing
// Application Totals block with memory high-water mark and controller
// network bandwidth.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RegionLine is one region's row within a host's block.
type RegionLine struct {
	Name             string
	Runtime          time.Duration
	EnergyJoules     float64
	FrequencyPercent float64
	MPIRuntime       time.Duration
	Count            uint64
}

// NodeReport is one controller process's contribution to the master
// report. The root adds its own in Controller.Generate and each peer's
// through Controller.GatherReport; TreeComm does not carry NodeReports.
type NodeReport struct {
	Host           string
	Regions        []RegionLine
	Runtime        time.Duration
	MemoryHWMBytes uint64
}

// Writer accumulates NodeReports over a run and renders the master report
// at shutdown.
type Writer struct {
	version string
	profile string
	runID   string
	agent   map[string]string
	nodes   []NodeReport
	bwBytes uint64
}

// NewWriter starts a report for the given GEOPM version string and
// profile name (spec §6's "Profile:" line).
func NewWriter(version, profile string) *Writer {
	return &Writer{version: version, profile: profile, agent: map[string]string{}}
}

// SetRunID records the controller-generated run identifier (spec §6's report
// header gains a "Run:" line distinguishing repeated runs of the same
// profile, the same role a trace file's name plays for a single node).
func (w *Writer) SetRunID(id string) { w.runID = id }

// SetAgentHeader records the active agent's ReportHeader() fields; "Agent"
// is rendered from the "Agent" key if present, else "unknown".
func (w *Writer) SetAgentHeader(h map[string]string) { w.agent = h }

// AddNode appends one node's contribution. The root calls this once per
// node gathered at shutdown.
func (w *Writer) AddNode(n NodeReport) { w.nodes = append(w.nodes, n) }

// SetControllerBandwidth records the cumulative tree-comm bytes sent figure
// for the Application Totals block.
func (w *Writer) SetControllerBandwidth(bytes uint64) { w.bwBytes = bytes }

// Render produces the full report text.
func (w *Writer) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "##### geopm %s #####\n", w.version)
	fmt.Fprintf(&b, "Profile: %s\n", w.profile)
	agentName := w.agent["Agent"]
	if agentName == "" {
		agentName = "unknown"
	}
	fmt.Fprintf(&b, "Agent: %s\n", agentName)
	if w.runID != "" {
		fmt.Fprintf(&b, "Run: %s\n", w.runID)
	}
	b.WriteString("\n")

	nodes := append([]NodeReport(nil), w.nodes...)
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Host < nodes[j].Host })

	var totalRuntime time.Duration
	var totalMemHWM uint64
	for _, n := range nodes {
		fmt.Fprintf(&b, "Host: %s\n", n.Host)
		regions := append([]RegionLine(nil), n.Regions...)
		sort.Slice(regions, func(i, j int) bool { return regions[i].Name < regions[j].Name })
		for _, r := range regions {
			fmt.Fprintf(&b, "  Region %s: runtime=%.6f energy=%.3f frequency=%.2f%% mpi-runtime=%.6f count=%d\n",
				r.Name, r.Runtime.Seconds(), r.EnergyJoules, r.FrequencyPercent, r.MPIRuntime.Seconds(), r.Count)
		}
		b.WriteString("\n")
		if n.Runtime > totalRuntime {
			totalRuntime = n.Runtime
		}
		totalMemHWM += n.MemoryHWMBytes
	}

	b.WriteString("Application Totals:\n")
	fmt.Fprintf(&b, "  runtime: %.6f\n", totalRuntime.Seconds())
	fmt.Fprintf(&b, "  memory-hwm-bytes: %d\n", totalMemHWM)
	fmt.Fprintf(&b, "  controller-network-bandwidth-bytes: %d\n", w.bwBytes)
	return b.String()
}
