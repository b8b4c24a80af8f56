package shmem

import (
	"math"
	"sync"

	"github.com/geopm/geopmd/internal/gerr"
)

// CellSize is the fixed, page-aligned size of every policy/sample cell,
// per spec §6.
const CellSize = 4096

// The mutex slot width reserves the same number of bytes a native
// PTHREAD_PROCESS_SHARED, PTHREAD_MUTEX_ERRORCHECK pthread_mutex_t occupies
// on a 64-bit Linux target (sizeof(pthread_mutex_t) == 40). A pure Go
// process cannot natively place a pthread mutex in memory, so this port
// reserves the identical byte span (keeping cross-language field offsets
// stable per spec §9's "keep the exact byte layout" note) and implements
// the actual mutual exclusion in-process with a sync.Mutex, which does not
// exclude other processes mapping the same region.
const (
	offsetLock      = 0
	sizeLock        = 40
	offsetIsUpdated = offsetLock + sizeLock // 40
	offsetCount     = 48                    // 8-byte aligned
	offsetValues    = 56
	maxValues       = (CellSize - offsetValues) / 8 // 505
)

// Cell is a policy or sample vector cell: {lock, is_updated, count,
// values[N]} padded to CellSize. It mirrors the byte layout spec §6
// mandates for both the downward policy cell and the upward endpoint-sample
// cell.
type Cell struct {
	mem sync.Mutex // emulates the PTHREAD_PROCESS_SHARED ERRORCHECK mutex
	mp  MemoryProvider
	// base is the cell's byte offset within mp; a single MemoryProvider may
	// back several cells (e.g. all children of one tree level).
	base  uint32
	arity int
}

// NewCell binds a Cell view of width `arity` doubles at the given base
// offset within mp. It fails (KindInvalidArgument) if arity exceeds the
// cell's fixed capacity or CellSize + base overflows mp's bound.
func NewCell(mp MemoryProvider, base uint32, arity int) (*Cell, error) {
	if arity < 0 || arity > maxValues {
		return nil, gerr.New(gerr.KindInvalidArgument, "cell.go", 0,
			"arity %d exceeds cell capacity %d", arity, maxValues)
	}
	if uint64(base)+uint64(CellSize) > uint64(mp.Size()) {
		return nil, gerr.New(gerr.KindInvalidArgument, "cell.go", 0,
			"cell at offset %d does not fit in %d-byte region", base, mp.Size())
	}
	return &Cell{mp: mp, base: base, arity: arity}, nil
}

// Write locks the cell, stores values (NaN-padding any short vector),
// increments count, sets is_updated, and unlocks. Lifecycle: the writer
// side of spec §3's policy/sample vector traversal.
func (c *Cell) Write(values []float64) error {
	if len(values) > c.arity {
		return gerr.New(gerr.KindInvalidArgument, "cell.go", 0,
			"value vector length %d exceeds cell arity %d", len(values), c.arity)
	}
	c.mem.Lock()
	defer c.mem.Unlock()

	buf := make([]byte, 8*c.arity)
	for i := 0; i < c.arity; i++ {
		v := nan()
		if i < len(values) {
			v = values[i]
		}
		PutFloat64(buf, uint32(i*8), v)
	}
	if err := c.mp.WriteAt(c.base+offsetValues, buf); err != nil {
		return err
	}

	countBuf := make([]byte, 8)
	cur, err := c.readCountLocked()
	if err != nil {
		return err
	}
	PutUint64(countBuf, 0, cur+1)
	if err := c.mp.WriteAt(c.base+offsetCount, countBuf); err != nil {
		return err
	}
	return c.mp.WriteAt(c.base+offsetIsUpdated, []byte{1})
}

// Read locks the cell, copies out the value vector and the is_updated flag,
// and — if consume is true — clears is_updated (the receive_down/receive_up
// "check, upgrade, copy, clear" sequence from spec §4.3).
func (c *Cell) Read(consume bool) (values []float64, updated bool, err error) {
	c.mem.Lock()
	defer c.mem.Unlock()

	flagBuf := make([]byte, 1)
	if err := c.mp.ReadAt(c.base+offsetIsUpdated, flagBuf); err != nil {
		return nil, false, err
	}
	updated = flagBuf[0] == 1
	if !updated {
		return nil, false, nil
	}

	buf := make([]byte, 8*c.arity)
	if err := c.mp.ReadAt(c.base+offsetValues, buf); err != nil {
		return nil, false, err
	}
	values = make([]float64, c.arity)
	for i := 0; i < c.arity; i++ {
		values[i] = GetFloat64(buf, uint32(i*8))
	}

	if consume {
		if err := c.mp.WriteAt(c.base+offsetIsUpdated, []byte{0}); err != nil {
			return nil, false, err
		}
	}
	return values, true, nil
}

func (c *Cell) readCountLocked() (uint64, error) {
	buf := make([]byte, 8)
	if err := c.mp.ReadAt(c.base+offsetCount, buf); err != nil {
		return 0, err
	}
	return GetUint64(buf, 0), nil
}

// Count returns the number of Write calls observed so far.
func (c *Cell) Count() (uint64, error) {
	c.mem.Lock()
	defer c.mem.Unlock()
	return c.readCountLocked()
}

func nan() float64 { return math.NaN() }
