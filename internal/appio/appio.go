package appio

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/geopm/geopmd/internal/gerr"
	"github.com/geopm/geopmd/internal/shmem"
)

// ApplicationIO is the controller-side half of the shared-memory rendezvous
// described in spec §4.2.
type ApplicationIO struct {
	log     *zap.Logger
	control *shmem.ControlCell
	ranks   []*RankTable

	mu           sync.Mutex
	regionStats  map[RegionID]*RegionStats
	openEntry    map[openKey]time.Time
	entryExit    []Event
	appStart     time.Time
	epochStart   time.Time
	haveEpoch    bool
	totalEpoch   time.Duration
	ranksPerNode int
	cpuToRank    []int32
}

// New constructs an ApplicationIO bound to a control-message cell and the
// given per-rank tables (one per local application rank).
func New(control *shmem.ControlCell, ranks []*RankTable, log *zap.Logger) *ApplicationIO {
	if log == nil {
		log = zap.NewNop()
	}
	return &ApplicationIO{
		log:         log,
		control:     control,
		ranks:       ranks,
		regionStats: make(map[RegionID]*RegionStats),
	}
}

// Connect performs the multi-step rendezvous on the control-message cell:
// init -> map-begin -> map-end -> sample-begin. The controller makes each of
// these transitions itself, publishing cpuToRank during the map phase; it
// does not wait for the application to write any state. timeout bounds only
// the check that the cell reads map-end after the controller's own advance
// (KindAppStalled on expiry). A cell that is not at init fails the first
// Advance.
func (a *ApplicationIO) Connect(timeout time.Duration, cpuToRank []int32) error {
	deadline := time.Now().Add(timeout)
	advance := func(want shmem.ControlState) error {
		for {
			s, err := a.control.State()
			if err != nil {
				return err
			}
			if s == want {
				return nil
			}
			if time.Now().After(deadline) {
				return gerr.New(gerr.KindAppStalled, "appio.go", 0,
					"control cell stalled at %s waiting for %s", s, want)
			}
			time.Sleep(time.Millisecond)
		}
	}

	if err := a.control.Advance(shmem.StateMapBegin); err != nil {
		return err
	}
	if err := a.control.SetCPUToRank(cpuToRank); err != nil {
		return err
	}
	if err := a.control.Advance(shmem.StateMapEnd); err != nil {
		return err
	}
	if err := advance(shmem.StateMapEnd); err != nil {
		return err
	}
	if err := a.control.Advance(shmem.StateSampleBegin); err != nil {
		return err
	}

	a.mu.Lock()
	a.cpuToRank = a.control.CPUToRank()
	a.ranksPerNode = countRanksPerNode(a.cpuToRank)
	a.appStart = time.Now()
	a.mu.Unlock()
	return nil
}

func countRanksPerNode(cpuToRank []int32) int {
	seen := make(map[int32]bool)
	for _, r := range cpuToRank {
		seen[r] = true
	}
	return len(seen)
}

// Update drains every rank's pending profile messages, folds them into
// per-region stats and the epoch clock, and appends new entries to the
// caller-visible entry/exit list. `comm` is accepted for signature parity
// with spec §4.5's application_io.update(comm) call, but this port has no
// use for the communicator handle directly — region folding is purely
// local per node.
func (a *ApplicationIO) Update(comm any) error {
	var all []ProfileMessage
	for _, rt := range a.ranks {
		all = append(all, rt.Drain()...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].WallTime.Before(all[j].WallTime) })

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.openEntry == nil {
		a.openEntry = make(map[openKey]time.Time)
	}

	for _, m := range all {
		stats := a.regionStats[m.Region]
		if stats == nil {
			stats = &RegionStats{}
			a.regionStats[m.Region] = stats
		}

		if m.Region == EpochRegionID && m.IsEntry {
			a.epochStart = m.WallTime
			a.haveEpoch = true
		}

		if m.IsEntry {
			if !stats.haveFirst {
				stats.FirstEntry = m.WallTime
				stats.haveFirst = true
			}
			a.openEntry[openKey{m.Region, m.Rank}] = m.WallTime
			a.entryExit = append(a.entryExit, Event{Region: m.Region, Kind: EventEnter, Timestamp: m.WallTime, Rank: m.Rank})
			continue
		}

		// exit: attribute the delta since the matching entry (discarded,
		// unmatched exits never reach here — RankTable.PostExit already
		// dropped those per spec §3's LIFO-pairing invariant).
		key := openKey{m.Region, m.Rank}
		if entryAt, ok := a.openEntry[key]; ok {
			delta := m.WallTime.Sub(entryAt)
			if m.IsMPI {
				stats.MPITime += delta
			} else {
				stats.Runtime += delta
			}
			delete(a.openEntry, key)
		}
		stats.Count++
		a.entryExit = append(a.entryExit, Event{Region: m.Region, Kind: EventExit, Timestamp: m.WallTime, Rank: m.Rank})
		if m.Region == EpochRegionID && a.haveEpoch {
			a.totalEpoch = m.WallTime.Sub(a.epochStart)
		}
	}
	return nil
}

type openKey struct {
	region RegionID
	rank   int
}

// RegionNameSet returns every region observed so far.
func (a *ApplicationIO) RegionNameSet() []RegionID {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]RegionID, 0, len(a.regionStats))
	for id := range a.regionStats {
		out = append(out, id)
	}
	return out
}

// TotalRegionRuntime returns the accumulated runtime for a region.
func (a *ApplicationIO) TotalRegionRuntime(region RegionID) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.regionStats[region]; ok {
		return s.Runtime
	}
	return 0
}

// TotalCount returns the entry/exit pair count for a region (spec §8's
// total_count(region)=k invariant).
func (a *ApplicationIO) TotalCount(region RegionID) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.regionStats[region]; ok {
		return s.Count
	}
	return 0
}

// TotalMPIRuntime returns the accumulated MPI time for a region.
func (a *ApplicationIO) TotalMPIRuntime(region RegionID) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.regionStats[region]; ok {
		return s.MPITime
	}
	return 0
}

// RecordRegionFrequency folds one frequency-percent-of-sticker reading into
// a region's running average (spec §6's per-region "frequency" column).
// The Controller calls this once per completed region exit, sourced from
// whatever instantaneous FREQUENCY signal PlatformIO has pushed.
func (a *ApplicationIO) RecordRegionFrequency(region RegionID, percent float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := a.regionStats[region]
	if stats == nil {
		stats = &RegionStats{}
		a.regionStats[region] = stats
	}
	stats.freqSum += percent
	stats.freqCount++
}

// AverageRegionFrequency returns the mean of every reading
// RecordRegionFrequency has folded in for region, or 0 if none yet.
func (a *ApplicationIO) AverageRegionFrequency(region RegionID) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.regionStats[region]
	if !ok || s.freqCount == 0 {
		return 0
	}
	return s.freqSum / float64(s.freqCount)
}

// TotalAppRuntime returns wall time since Connect returned.
func (a *ApplicationIO) TotalAppRuntime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.appStart.IsZero() {
		return 0
	}
	return time.Since(a.appStart)
}

// TotalEpochRuntime returns the most recently completed epoch's duration.
func (a *ApplicationIO) TotalEpochRuntime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalEpoch
}

// DoShutdown reports whether the application has signaled shutdown.
func (a *ApplicationIO) DoShutdown() bool { return a.control.DoShutdown() }

// ClearRegionEntryExit resets the entry/exit list after the Tracer has
// consumed it.
func (a *ApplicationIO) ClearRegionEntryExit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entryExit = nil
}

// RegionEntryExit returns the current entry/exit list without clearing it.
func (a *ApplicationIO) RegionEntryExit() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Event(nil), a.entryExit...)
}

// RanksPerNode returns the rank count determined during Connect.
func (a *ApplicationIO) RanksPerNode() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ranksPerNode
}
