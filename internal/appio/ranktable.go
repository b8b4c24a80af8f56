package appio

import (
	"sync"
	"time"
)

// ProfileMessage is the fingerprint-sized record the application writes into
// shared memory: {region-id, wall-time, progress-fraction, rank} (spec §3).
type ProfileMessage struct {
	Region    RegionID
	WallTime  time.Time
	Progress  float64 // in [0, 1]
	Rank      int
	IsEntry   bool // true on region entry, false on exit
	IsMPI     bool // counts toward MPITime rather than plain runtime
}

// slot is the most recent (entry, progress, exit) triple recorded for one
// region by one rank, the in-memory shape of the teacher's SPSC hash table
// entry.
type slot struct {
	entry    time.Time
	haveExit bool
	exit     time.Time
	progress float64
}

// RankTable is a single-producer/single-consumer table keyed by region-id:
// the application rank is the sole producer (PostEntry/PostExit), and
// ApplicationIO.Update is the sole consumer (Drain). Grounded on
// foundation.MessageQueue's SPSC ring. slots keeps only the most recent
// (entry, progress, exit) state per region, used to pair exits with
// entries; what the consumer drains is the append-only log of every
// entry and exit posted since the previous Drain.
type RankTable struct {
	mu      sync.Mutex
	rank    int
	slots   map[RegionID]*slot
	pending []ProfileMessage // append-only log drained by ApplicationIO.Update
}

func NewRankTable(rank int) *RankTable {
	return &RankTable{rank: rank, slots: make(map[RegionID]*slot)}
}

// PostEntry is called by the application on region entry.
func (t *RankTable) PostEntry(region RegionID, at time.Time, isMPI bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[region] = &slot{entry: at}
	t.pending = append(t.pending, ProfileMessage{Region: region, WallTime: at, Rank: t.rank, IsEntry: true, IsMPI: isMPI})
}

// PostProgress records a progress fraction update for an in-flight region.
func (t *RankTable) PostProgress(region RegionID, progress float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.slots[region]; ok {
		s.progress = progress
	}
}

// PostExit is called by the application on region exit. An exit with no
// matching entry is discarded (spec §3's LIFO-pairing invariant); the
// discard is surfaced to the caller so it can be logged.
func (t *RankTable) PostExit(region RegionID, at time.Time, isMPI bool) (discarded bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[region]
	if !ok {
		return true
	}
	s.haveExit = true
	s.exit = at
	t.pending = append(t.pending, ProfileMessage{Region: region, WallTime: at, Rank: t.rank, IsEntry: false, IsMPI: isMPI})
	delete(t.slots, region)
	return false
}

// Drain snapshots and clears the pending message log, in the order the
// messages were posted; ApplicationIO.Update stable-sorts the merged logs
// of all ranks by timestamp (ties preserved in rank order, spec §4.2). It
// is the sole consumer-side operation, called once per tick from
// ApplicationIO.Update.
func (t *RankTable) Drain() []ProfileMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) == 0 {
		return nil
	}
	out := t.pending
	t.pending = nil
	return out
}
