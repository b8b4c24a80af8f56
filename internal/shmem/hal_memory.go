package shmem

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
)

// MemoryBuffer is an in-process MemoryProvider, the direct analogue of the
// teacher's sab/hal_memory.go in-memory fake. It backs unit tests and the
// RunModeGoroutine hosting mode (spec §5, SPEC_FULL §5) where the
// application and controller share an address space instead of a real
// shared-memory segment.
type MemoryBuffer struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryBuffer allocates a zeroed region of the given size.
func NewMemoryBuffer(size uint32) *MemoryBuffer {
	return &MemoryBuffer{data: make([]byte, size)}
}

func (b *MemoryBuffer) Size() uint32 { return uint32(len(b.data)) }

func (b *MemoryBuffer) ReadAt(offset uint32, dest []byte) error {
	if uint64(offset)+uint64(len(dest)) > uint64(len(b.data)) {
		return ErrOutOfBounds
	}
	b.mu.Lock()
	copy(dest, b.data[offset:offset+uint32(len(dest))])
	b.mu.Unlock()
	return nil
}

func (b *MemoryBuffer) WriteAt(offset uint32, src []byte) error {
	if uint64(offset)+uint64(len(src)) > uint64(len(b.data)) {
		return ErrOutOfBounds
	}
	b.mu.Lock()
	copy(b.data[offset:offset+uint32(len(src))], src)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBuffer) AtomicLoad32(offset uint32) (uint32, error) {
	if err := b.checkAligned(offset, 4); err != nil {
		return 0, err
	}
	p := (*uint32)(ptr32(b.data, offset))
	return atomic.LoadUint32(p), nil
}

func (b *MemoryBuffer) AtomicStore32(offset uint32, val uint32) error {
	if err := b.checkAligned(offset, 4); err != nil {
		return err
	}
	p := (*uint32)(ptr32(b.data, offset))
	atomic.StoreUint32(p, val)
	return nil
}

func (b *MemoryBuffer) AtomicCompareAndSwap32(offset uint32, old, new uint32) (bool, error) {
	if err := b.checkAligned(offset, 4); err != nil {
		return false, err
	}
	p := (*uint32)(ptr32(b.data, offset))
	return atomic.CompareAndSwapUint32(p, old, new), nil
}

func (b *MemoryBuffer) Close() error { return nil }

func (b *MemoryBuffer) checkAligned(offset, width uint32) error {
	if uint64(offset)+uint64(width) > uint64(len(b.data)) {
		return ErrOutOfBounds
	}
	if offset%4 != 0 {
		return ErrMisaligned
	}
	return nil
}

// PutUint64 / GetUint64 are little-endian helpers used by Cell for the
// count/value fields that don't need atomicity (they're always written
// under the cell's lock).
func PutUint64(b []byte, off uint32, v uint64) { binary.LittleEndian.PutUint64(b[off:], v) }
func GetUint64(b []byte, off uint32) uint64    { return binary.LittleEndian.Uint64(b[off:]) }
func PutFloat64(b []byte, off uint32, v float64) {
	binary.LittleEndian.PutUint64(b[off:], float64bits(v))
}
func GetFloat64(b []byte, off uint32) float64 { return float64frombits(binary.LittleEndian.Uint64(b[off:])) }
