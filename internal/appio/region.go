// Package appio implements ApplicationIO: shared-memory rendezvous between
// profiled application ranks and the controller, spec §4.2. Modeled on the
// teacher's foundation.MessageQueue zero-copy SPSC ring (header/payload
// split, atomic head/tail) collapsed to the "most recent (entry, progress,
// exit) per region" hash table spec §4.2 actually calls for, and on
// supervisor.Protocol's handshake shape for connect().
package appio

import (
	"hash/fnv"
	"time"
)

// RegionFlag bits are reserved in the high bits of a region hash.
type RegionFlag uint64

const (
	RegionFlagMPI   RegionFlag = 1 << 63
	RegionFlagEpoch RegionFlag = 1 << 62
)

// RegionID identifies a region by a 64-bit hash of its name, with the top
// two bits reserved for the MPI-region and epoch-region flags (spec §3).
type RegionID uint64

// HashRegionName computes the canonical RegionID for a region name, OR-ing
// in any flags.
func HashRegionName(name string, flags RegionFlag) RegionID {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	hash := h.Sum64() &^ (RegionFlagMPI | RegionFlagEpoch) // clear flag bits from the hash body
	return RegionID(hash | uint64(flags))
}

// EpochRegionID is the distinguished region that marks epochs (spec §4.2):
// every entry restarts the epoch clock, and every exit records the time
// since the latest entry as the most recently completed epoch.
var EpochRegionID = HashRegionName("EPOCH", RegionFlagEpoch)

// Hint classifies a region's expected behavior (spec §3).
type Hint int

const (
	HintUnknown Hint = iota
	HintCompute
	HintMemory
	HintNetwork
	HintIO
	HintSerial
	HintParallel
	HintIgnore
)

// RegionStats accumulates totals for one region, summed over every rank on
// this node: runtime, MPI time, exit count, and the timestamp of the first
// entry. Per-rank values are not kept separately.
type RegionStats struct {
	Name        string
	Hint        Hint
	Runtime     time.Duration
	MPITime     time.Duration
	Count       uint64
	FirstEntry  time.Time
	haveFirst   bool

	// freqSum/freqCount back AverageRegionFrequency: a running mean of
	// whatever frequency-percent-of-sticker readings RecordRegionFrequency
	// folds in, one per completed region exit.
	freqSum   float64
	freqCount uint64
}

// EventKind distinguishes an entry from an exit in the caller-visible
// entry/exit list produced by Update (spec §4.2).
type EventKind int

const (
	EventEnter EventKind = iota
	EventExit
)

// Event is one entry/exit record appended to the caller-visible list that
// the Controller and Tracer consume each tick.
type Event struct {
	Region    RegionID
	Kind      EventKind
	Timestamp time.Time
	Rank      int
}
