// Package p2ptransport implements treecomm.Transport over libp2p streams,
// grounded on the teacher's internal/network/mesh.go: a persistent Ed25519
// identity, one protocol ID, a single stream handler, and a connect-then-
// NewStream send path. Where mesh.go sends one packet per call and reads
// the whole response back, a tree link is one-way and fire-and-forget: each
// write opens a stream, writes a small header plus a wire.Frame, and closes.
package p2ptransport

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/geopm/geopmd/internal/gerr"
	"github.com/geopm/geopmd/internal/treecomm"
	"github.com/geopm/geopmd/internal/wire"
)

const treeProtocol = protocol.ID("/geopm/treecomm/1.0.0")

type persistentIdentity struct {
	PrivKey []byte `json:"priv_key"`
	PeerID  string `json:"peer_id"`
}

func loadOrCreateIdentity(path string) (crypto.PrivKey, error) {
	if data, err := os.ReadFile(path); err == nil {
		var id persistentIdentity
		if err := json.Unmarshal(data, &id); err != nil {
			return nil, gerr.Wrap(gerr.KindFileParse, "p2p.go", 0, err, "parsing node identity file")
		}
		return crypto.UnmarshalPrivateKey(id.PrivKey)
	}

	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, gerr.Wrap(gerr.KindRuntime, "p2p.go", 0, err, "generating node identity")
	}
	pid, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, gerr.Wrap(gerr.KindRuntime, "p2p.go", 0, err, "deriving peer id")
	}
	privBytes, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, gerr.Wrap(gerr.KindRuntime, "p2p.go", 0, err, "marshaling node identity")
	}
	data, err := json.Marshal(persistentIdentity{PrivKey: privBytes, PeerID: pid.String()})
	if err == nil {
		_ = os.WriteFile(path, data, 0o600)
	}
	return priv, nil
}

type addrKey struct {
	level, slot int
	dir         treecomm.Direction
}

// Host is a treecomm.Transport backed by one libp2p host per node.
type Host struct {
	host libp2phost.Host
	log  *zap.Logger

	mu        sync.RWMutex
	listeners map[addrKey]*treecomm.Mailbox
}

// New starts a libp2p host on listenAddrs (or libp2p's defaults if empty),
// loading or creating a persistent identity at identityPath, and installs
// the tree protocol's stream handler.
func New(ctx context.Context, identityPath string, listenAddrs []string, log *zap.Logger) (*Host, error) {
	priv, err := loadOrCreateIdentity(identityPath)
	if err != nil {
		return nil, err
	}

	opts := []libp2p.Option{libp2p.Identity(priv)}
	if len(listenAddrs) > 0 {
		opts = append(opts, libp2p.ListenAddrStrings(listenAddrs...))
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, gerr.Wrap(gerr.KindRuntime, "p2p.go", 0, err, "starting libp2p host")
	}

	t := &Host{host: h, log: log, listeners: make(map[addrKey]*treecomm.Mailbox)}
	h.SetStreamHandler(treeProtocol, t.handleStream)
	return t, nil
}

// ID returns this host's peer ID. Writer does not take a bare peer ID; it
// expects the full multiaddr ListenAddr returns, which ends in this ID.
func (t *Host) ID() treecomm.PeerID { return treecomm.PeerID(t.host.ID().String()) }

// ListenAddr returns a dialable multiaddr for this host, combining its
// first listen address with its peer ID, the same shape mesh.go's
// NewTestNode builds.
func (t *Host) ListenAddr() string {
	addrs := t.host.Addrs()
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0].String() + "/p2p/" + t.host.ID().String()
}

func (t *Host) handleStream(s network.Stream) {
	defer s.Close()
	data, err := io.ReadAll(s)
	if err != nil {
		t.log.Warn("treecomm stream read failed", zap.Error(err))
		return
	}
	if len(data) < 12 {
		t.log.Warn("treecomm stream frame too short", zap.Int("bytes", len(data)))
		return
	}
	level := int(binary.BigEndian.Uint32(data[0:4]))
	slot := int(binary.BigEndian.Uint32(data[4:8]))
	dir := treecomm.Direction(binary.BigEndian.Uint32(data[8:12]))

	frame, err := wire.Unmarshal(data[12:])
	if err != nil {
		t.log.Warn("treecomm frame decode failed", zap.Error(err))
		return
	}

	t.mu.RLock()
	mb := t.listeners[addrKey{level, slot, dir}]
	t.mu.RUnlock()
	if mb == nil {
		t.log.Warn("treecomm write to unregistered address", zap.Int("level", level), zap.Int("slot", slot))
		return
	}
	mb.Write(frame.Values)
}

// Serve implements treecomm.Transport.
func (t *Host) Serve(level, slot int, dir treecomm.Direction, mb *treecomm.Mailbox) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners[addrKey{level, slot, dir}] = mb
}

// Writer implements treecomm.Transport. peerAddr must be a dialable
// multiaddr (as returned by ListenAddr), not a bare peer ID, since the
// transport has no separate address book.
func (t *Host) Writer(peerAddr treecomm.PeerID, level, slot int, dir treecomm.Direction) treecomm.Window {
	return &remoteWriter{host: t.host, log: t.log, peerAddr: string(peerAddr), level: level, slot: slot, dir: dir}
}

// Close implements treecomm.Transport.
func (t *Host) Close() error { return t.host.Close() }

type remoteWriter struct {
	host     libp2phost.Host
	log      *zap.Logger
	peerAddr string
	level    int
	slot     int
	dir      treecomm.Direction
}

// Write ships values to the remote mailbox. Delivery is fire-and-forget:
// treecomm's own NaN-as-not-ready convention, not a transport acknowledgment,
// is what the receiving level polls for readiness.
func (w *remoteWriter) Write(values []float64) {
	maddr, err := ma.NewMultiaddr(w.peerAddr)
	if err != nil {
		w.log.Warn("treecomm invalid peer address", zap.String("addr", w.peerAddr), zap.Error(err))
		return
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		w.log.Warn("treecomm invalid peer info", zap.Error(err))
		return
	}

	ctx := context.Background()
	if err := w.host.Connect(ctx, *info); err != nil {
		w.log.Warn("treecomm connect failed", zap.Stringer("peer", info.ID), zap.Error(err))
		return
	}
	stream, err := w.host.NewStream(ctx, info.ID, treeProtocol)
	if err != nil {
		w.log.Warn("treecomm stream open failed", zap.Stringer("peer", info.ID), zap.Error(err))
		return
	}
	defer stream.Close()

	header := make([]byte, 12)
	binary.BigEndian.PutUint32(header[0:4], uint32(w.level))
	binary.BigEndian.PutUint32(header[4:8], uint32(w.slot))
	binary.BigEndian.PutUint32(header[8:12], uint32(w.dir))
	payload := wire.Marshal(wire.Frame{IsReady: true, Values: values})

	bw := bufio.NewWriter(stream)
	if _, err := bw.Write(header); err != nil {
		w.log.Warn("treecomm header write failed", zap.Error(err))
		return
	}
	if _, err := bw.Write(payload); err != nil {
		w.log.Warn("treecomm payload write failed", zap.Error(err))
		return
	}
	if err := bw.Flush(); err != nil {
		w.log.Warn("treecomm flush failed", zap.Error(err))
	}
}
