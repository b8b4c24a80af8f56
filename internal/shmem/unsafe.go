package shmem

import (
	"math"
	"unsafe"
)

// ptr32 returns a pointer to the uint32 at offset within data, the same
// unsafe.Pointer(&sab[offset]) idiom the teacher's foundation.EnhancedEpoch
// and MessageQueue use for atomic access into a shared byte slice.
func ptr32(data []byte, offset uint32) unsafe.Pointer {
	return unsafe.Pointer(&data[offset])
}

func float64bits(v float64) uint64    { return math.Float64bits(v) }
func float64frombits(b uint64) float64 { return math.Float64frombits(b) }
