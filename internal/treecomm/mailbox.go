// Package treecomm implements the k-ary tree communicator described in
// spec §4.3: fixed-width sample vectors traveling upward, policy vectors
// traveling downward, one per-child one-sided window with lock-per-
// transaction semantics.
//
// Per spec §9's design note ("in a port that does not target MPI, model
// each level as a single-producer/single-consumer ring per child with
// atomic is_ready flags"), each window slot here is a Mailbox: a single
// is_ready flag guarding one value vector (p2ptransport carries it between
// processes as a wire.Frame), guarded by an ordinary mutex standing
// in for the MPI exclusive/shared window lock. The single-writer discipline
// (sab/guard.go's AccessSingleWriter) and the wait-free "did anything
// change" check (foundation.EnhancedEpoch) are the teacher patterns this
// mirrors.
package treecomm

import (
	"math"
	"sync"
	"sync/atomic"
)

// Mailbox is one window slot: a single producer writes a frame and flips
// ready; a single consumer polls ready, copies, and clears it.
type Mailbox struct {
	mu    sync.Mutex
	ready bool
	vals  []float64

	bytesSent uint64
}

// NewMailbox allocates an empty, not-ready mailbox; each Write sets the
// vector length.
func NewMailbox() *Mailbox { return &Mailbox{} }

// Write stores values and sets ready, the exclusive-lock "write under lock"
// step of send_up/send_down.
func (m *Mailbox) Write(values []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals = append([]float64(nil), values...)
	m.ready = true
	atomic.AddUint64(&m.bytesSent, uint64(8*len(values)))
}

// TryRead reports whether the mailbox is ready. A frame containing NaN in
// any position counts as not-ready (spec §4.3). If consume is true and the
// mailbox was ready, the ready flag is cleared.
func (m *Mailbox) TryRead(consume bool) (values []float64, ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil, false
	}
	for _, v := range m.vals {
		if math.IsNaN(v) {
			return nil, false
		}
	}
	out := append([]float64(nil), m.vals...)
	if consume {
		m.ready = false
	}
	return out, true
}

// BytesSent returns the running total of bytes written into this mailbox,
// used by the Reporter's controller-network-bandwidth figure.
func (m *Mailbox) BytesSent() uint64 { return atomic.LoadUint64(&m.bytesSent) }
