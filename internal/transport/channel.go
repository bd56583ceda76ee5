// Package transport provides the per-peer ordered byte channel abstraction:
// the DKG and signing engines exchange opaque frames through a
// PeerChannel without caring whether the underlying link is a rendezvous-
// relayed WebSocket, an in-process test double, or an offline file bundle.
package transport

import (
	"sync"

	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/errs"
)

// State is a peer channel's lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// Frame is one opaque byte payload exchanged over a PeerChannel — the
// caller is responsible for interpreting it (a serialized wireproto
// message).
type Frame []byte

// PeerChannel is a bidirectional, best-effort-ordered byte channel to one
// other participant. Implementations: the in-process loopback pair used by
// tests, and the WebSocket-relayed link used in production.
type PeerChannel interface {
	Send(f Frame) error
	Recv() <-chan Frame
	State() State
	Closed() <-chan struct{}
	Close() error
}

// chanPeer is an in-process PeerChannel backed by Go channels — lets the
// DKG/signing engines run end-to-end in unit tests with no network,
// generalized from a single local party's internal pipe to a named peer
// link.
type chanPeer struct {
	mu     sync.Mutex
	out    chan Frame // writes land in the peer's inbox
	recvCh chan Frame // this endpoint's own inbox
	state  State
	closed chan struct{}
}

// NewLoopbackPair returns two connected PeerChannels, each delivering what
// the other sends, already in StateOpen.
func NewLoopbackPair() (PeerChannel, PeerChannel) {
	aToB := make(chan Frame, 64)
	bToA := make(chan Frame, 64)
	a := &chanPeer{out: bToA, recvCh: aToB, state: StateOpen, closed: make(chan struct{})}
	b := &chanPeer{out: aToB, recvCh: bToA, state: StateOpen, closed: make(chan struct{})}
	return a, b
}

func (c *chanPeer) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return errs.New(errs.PeerDisconnected, "transport.chanPeer.Send")
	}
	select {
	case c.out <- f:
		return nil
	default:
		return errs.New(errs.Transport, "transport.chanPeer.Send")
	}
}

func (c *chanPeer) Recv() <-chan Frame { return c.recvCh }
func (c *chanPeer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
func (c *chanPeer) Closed() <-chan struct{} { return c.closed }

func (c *chanPeer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	close(c.closed)
	return nil
}

// Manager tracks every peer channel for one session and holds the pieces of
// the mesh-readiness gate: AllOpen reports whether every registered peer
// channel is Open, and MarkSelfSent records that this device's own
// mesh-ready frame has gone out exactly once. Manager does not block DKG
// progress itself: nothing here stops a round from advancing before AllOpen
// holds or before a mesh-ready frame has been sent.
type Manager struct {
	mu       sync.Mutex
	peers    map[string]PeerChannel
	selfSent bool
	log      *zap.Logger
}

// NewManager constructs an empty Manager.
func NewManager(log *zap.Logger) *Manager {
	return &Manager{peers: make(map[string]PeerChannel), log: log}
}

// AddPeer registers a channel for deviceID.
func (m *Manager) AddPeer(deviceID string, ch PeerChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[deviceID] = ch
}

// Peer returns the channel for deviceID, if any.
func (m *Manager) Peer(deviceID string) (PeerChannel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.peers[deviceID]
	return ch, ok
}

// AllOpen reports whether every registered peer channel is Open.
func (m *Manager) AllOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.peers {
		if ch.State() != StateOpen {
			return false
		}
	}
	return len(m.peers) > 0
}

// MarkSelfSent records that this device's own mesh-ready frame has gone out
// exactly once; returns false if it was already sent (caller must not
// resend).
func (m *Manager) MarkSelfSent() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selfSent {
		return false
	}
	m.selfSent = true
	return true
}

// Broadcast sends f to every registered peer, logging (not failing) on any
// individual send error — a single peer's backpressure or disconnect must
// not abort delivery to the others.
func (m *Manager) Broadcast(f Frame) {
	m.mu.Lock()
	peers := make(map[string]PeerChannel, len(m.peers))
	for k, v := range m.peers {
		peers[k] = v
	}
	m.mu.Unlock()

	for deviceID, ch := range peers {
		if err := ch.Send(f); err != nil {
			m.log.Warn("broadcast send failed", zap.String("peer", deviceID), zap.Error(err))
		}
	}
}
