package p2ptransport_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/geopm/geopmd/internal/treecomm"
	"github.com/geopm/geopmd/internal/treecomm/p2ptransport"
)

// newHost starts a libp2p-backed Host listening on an ephemeral loopback
// port, with its identity scoped to its own temp directory so two hosts in
// the same test never collide on the same identity file.
func newHost(t *testing.T) *p2ptransport.Host {
	t.Helper()
	identityPath := filepath.Join(t.TempDir(), "identity.json")
	h, err := p2ptransport.New(context.Background(), identityPath,
		[]string{"/ip4/127.0.0.1/tcp/0"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestRoundTripDeliversFrameToRegisteredMailbox(t *testing.T) {
	sender := newHost(t)
	receiver := newHost(t)

	inbox := treecomm.NewMailbox()
	receiver.Serve(1, 0, treecomm.DirUp, inbox)

	w := sender.Writer(treecomm.PeerID(receiver.ListenAddr()), 1, 0, treecomm.DirUp)
	w.Write([]float64{42, 7.5})

	require.Eventually(t, func() bool {
		_, ready := inbox.TryRead(false)
		return ready
	}, 5*time.Second, 10*time.Millisecond, "frame never arrived over the libp2p stream")

	values, ready := inbox.TryRead(true)
	require.True(t, ready)
	require.Equal(t, []float64{42, 7.5}, values)
}

func TestWriteToUnregisteredAddressIsDroppedNotPanicked(t *testing.T) {
	sender := newHost(t)
	receiver := newHost(t)

	// Nothing calls receiver.Serve for (level=9, slot=9, DirDown): the
	// stream handler must log and return rather than panic on a nil
	// mailbox lookup.
	w := sender.Writer(treecomm.PeerID(receiver.ListenAddr()), 9, 9, treecomm.DirDown)
	require.NotPanics(t, func() { w.Write([]float64{1}) })
}
