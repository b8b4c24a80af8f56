// Package shmem implements the fixed-layout shared-memory cells described in
// spec §3 and §6: the policy/sample cell and the control-message cell, both
// page-aligned and sized to 4 KiB, with a process-shared mutex and a
// monotonically advancing state latch respectively.
//
// The byte layout is modeled directly on the teacher's
// kernel/threads/sab package: a MemoryProvider abstraction (sab/hal.go) that
// separates the region's logical layout from its backing store (real mmap
// vs. an in-memory fake for tests). The teacher's RegionPolicy guard
// (sab/guard.go) is not carried over: nothing here checks who reads or
// writes a region.
package shmem

import "errors"

// MemoryProvider abstracts access to a shared-memory-backed byte region.
// Implementations may be backed by POSIX shared memory (mmap of a
// /dev/shm/<key> file) or, in tests, a plain in-process buffer.
type MemoryProvider interface {
	Size() uint32
	ReadAt(offset uint32, dest []byte) error
	WriteAt(offset uint32, src []byte) error
	AtomicLoad32(offset uint32) (uint32, error)
	AtomicStore32(offset uint32, val uint32) error
	AtomicCompareAndSwap32(offset uint32, old, new uint32) (bool, error)
	Close() error
}

var (
	ErrOutOfBounds = errors.New("shmem: offset out of bounds")
	ErrMisaligned  = errors.New("shmem: offset is not 4-byte aligned")
)
