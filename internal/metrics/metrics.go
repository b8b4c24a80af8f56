// Package metrics exposes the running controller's Prometheus surface: the
// controller-network bandwidth TreeComm accumulates, per-tick latency, and
// the root's most recently pushed aggregate sample — the one place SPEC_FULL
// §4.6 asks reports to be read back out of a running system, generalized
// from the teacher's mesh.Coordinator peer/latency/load statistics surface.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TreeBytesSent is the cumulative bytes written into tree-comm windows,
	// the same figure the Reporter's controller-network-bandwidth line reads
	// from Tree.BytesSent.
	TreeBytesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "geopm",
		Subsystem: "treecomm",
		Name:      "bytes_sent_total",
		Help:      "Cumulative bytes written into tree-comm mailbox windows.",
	})

	// TickLatency observes the wall-clock duration of one Controller tick.
	TickLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "geopm",
		Subsystem: "controller",
		Name:      "tick_latency_seconds",
		Help:      "Wall-clock duration of one Controller tick (walk_down + update + walk_up + agent wait).",
		Buckets:   prometheus.DefBuckets,
	})

	// NodePowerLimit is the per-node PowerBalancer power limit gauge. It is
	// registered by Register; nothing in this repository sets it.
	NodePowerLimit = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "geopm",
		Subsystem: "power_balancer",
		Name:      "power_limit_watts",
		Help:      "Current PowerBalancer power limit.",
	}, []string{"host"})

	// NodePowerSlack is the per-node PowerBalancer slack gauge. It is
	// registered by Register; nothing in this repository sets it.
	NodePowerSlack = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "geopm",
		Subsystem: "power_balancer",
		Name:      "power_slack_watts",
		Help:      "Current PowerBalancer power slack (cap minus limit).",
	}, []string{"host"})

	// rootSample is the most recent aggregated sample the root pushed,
	// exposed as one gauge per vector column for ad hoc inspection.
	rootSample = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "geopm",
		Subsystem: "manager",
		Name:      "root_sample",
		Help:      "Most recent root-aggregated sample vector, one gauge per column index.",
	}, []string{"column"})
)

var registerOnce sync.Once

// Register installs every collector into reg. Safe to call multiple times;
// only the first call takes effect.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(TreeBytesSent, TickLatency, NodePowerLimit, NodePowerSlack, rootSample)
	})
}

// SetRootSample publishes the root's most recent aggregated sample vector.
func SetRootSample(values []float64) {
	for i, v := range values {
		rootSample.WithLabelValues(strconv.Itoa(i)).Set(v)
	}
}
