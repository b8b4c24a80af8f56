package treecomm

import "golang.org/x/sync/errgroup"

// Window is the write side of a mailbox: either a local *Mailbox (same-
// process topologies, e.g. tests or a single-node deployment) or a network
// proxy that ships the write to whichever process actually owns the
// mailbox (see p2ptransport's Host.Writer). *Mailbox already implements it.
type Window interface {
	Write(values []float64)
}

// Level is one controlled tree level from this node's point of view: the
// node is level-root for up to NumChildren children at this level, and (if
// it is not the overall tree root) is itself one child of the level above.
//
// Grounded on spec §4.3's TreeCommLevel contract; the per-child mailbox
// array plays the role of the MPI one-sided windows, per the design note in
// spec §9.
type Level struct {
	Index       int
	NumChildren int

	// ChildUp[i] is the local mailbox this node reads child i's upward
	// sample from.
	ChildUp []*Mailbox
	// ChildDownWriter[i] is where this node writes child i's downward
	// policy.
	ChildDownWriter []Window
	policyLast      [][]float64

	// ParentSendWriter is where this node writes its own upward sample;
	// nil at the overall tree root.
	ParentSendWriter Window
	// ParentRecv is the local mailbox this node's policy-from-parent lands
	// in; nil at the overall tree root.
	ParentRecv *Mailbox
}

// SetChildDownWriters wires this level's downward writers, one per child.
// Called by the tree builder once every child's receive-side mailbox (local
// or remote) is known.
func (l *Level) SetChildDownWriters(ws []Window) { l.ChildDownWriter = ws }

// SetParentLinks wires this level's uplink: sendUp is where this node's own
// sample goes (nil at the tree root), recv is the local mailbox its policy
// from the parent lands in (also nil at the tree root).
func (l *Level) SetParentLinks(sendUp Window, recv *Mailbox) {
	l.ParentSendWriter = sendUp
	l.ParentRecv = recv
}

// NewLevel allocates a level with numChildren local ChildUp mailboxes and a
// policy-last cache of the same width. ChildDownWriter, ParentSendWriter and
// ParentRecv are wired in separately (by BuildSimulatedForest, a test
// harness, or a caller using p2ptransport Windows) since they may point at
// remote peers.
func NewLevel(index, numChildren int) *Level {
	l := &Level{
		Index:       index,
		NumChildren: numChildren,
		ChildUp:     make([]*Mailbox, numChildren),
		policyLast:  make([][]float64, numChildren),
	}
	for i := range l.ChildUp {
		l.ChildUp[i] = NewMailbox()
	}
	return l
}

// SendUp writes this node's upward sample into ParentSendWriter. At the
// overall tree root this is a no-op (there is no parent).
func (l *Level) SendUp(sample []float64) {
	if l.ParentSendWriter != nil {
		l.ParentSendWriter.Write(sample)
	}
}

// ReceiveUp checks every child's mailbox; if all are ready it copies and
// clears them, returning (samples, true). Partial progress is never
// exposed: if any child is not ready, it returns (nil, false) having
// consumed nothing, matching spec §4.3's "check, upgrade, copy, clear" —
// check-then-upgrade is modeled as the two-pass TryRead(false) then
// TryRead(true) below.
func (l *Level) ReceiveUp() ([][]float64, bool) {
	for _, mb := range l.ChildUp {
		if _, ready := mb.TryRead(false); !ready {
			return nil, false
		}
	}
	out := make([][]float64, l.NumChildren)
	for i, mb := range l.ChildUp {
		v, ready := mb.TryRead(true)
		if !ready {
			// A concurrent write flipped this child back to not-ready
			// between the check and the upgrade; treat the whole
			// gather as not-ready this tick rather than expose a
			// partial result.
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// SendDown writes perChild[i] to child i, skipping children whose policy is
// unchanged from the last send (the policy-last cache, spec §4.3's
// idempotence guarantee and spec §8's "twice with an equal policy produces
// exactly one window write" invariant). Writes to distinct children are
// independent, so they fan out concurrently — the one case where this
// matters is a remote Window backed by p2ptransport, where each write is a
// dial-and-stream round trip.
func (l *Level) SendDown(perChild [][]float64) {
	var g errgroup.Group
	for i, policy := range perChild {
		if equalPolicy(l.policyLast[i], policy) {
			continue
		}
		l.policyLast[i] = append([]float64(nil), policy...)
		w, p := l.ChildDownWriter[i], policy
		g.Go(func() error {
			w.Write(p)
			return nil
		})
	}
	_ = g.Wait()
}

// ReceiveDown returns the policy this node's parent most recently sent,
// clearing the ready flag on success. Returns (nil, false) until ready.
func (l *Level) ReceiveDown() ([]float64, bool) {
	if l.ParentRecv == nil {
		return nil, false
	}
	return l.ParentRecv.TryRead(true)
}

// SubmitOwn writes sample into this node's own child slot (slot 0: the
// controller is always the zero-coordinate member of the group it
// controls), the local equivalent of a remote child's upward send.
func (l *Level) SubmitOwn(sample []float64) {
	l.ChildUp[0].Write(sample)
}

// BytesSent sums the bytes written across every mailbox this node owns as
// reader at this level (its ChildUp windows), the figure the Reporter uses
// for controller network bandwidth (spec §4.3).
func (l *Level) BytesSent() uint64 {
	var total uint64
	for _, mb := range l.ChildUp {
		total += mb.BytesSent()
	}
	return total
}

func equalPolicy(a, b []float64) bool {
	if a == nil || len(a) != len(b) {
		return false
	}
	for i := range a {
		// NaN != NaN under ==, so a cached all-NaN policy never suppresses
		// a later identical-looking send; that's intentional; an agent
		// that wants idempotence for NaN columns should avoid resending
		// unset columns at all.
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
