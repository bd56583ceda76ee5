package transport

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/errs"
)

// wsPeer is the production PeerChannel: one logical peer link multiplexed
// over a single rendezvous-relayed WebSocket connection. The rendezvous
// client (internal/rendezvous) owns the actual *websocket.Conn and demuxes
// inbound Relay frames by sender device-id into the matching wsPeer's
// inbox; wsPeer.Send hands a frame to the client's outbound relay function
// rather than writing the socket directly, since one socket serves every
// peer in a session.
type wsPeer struct {
	mu      sync.Mutex
	deviceID string
	send    func(to string, data []byte) error
	inbox   chan Frame
	state   State
	closed  chan struct{}
}

// NewWebSocketPeer wraps a relay send function into a PeerChannel for one
// remote device. deliver should be invoked by the rendezvous client's read
// loop whenever a Relay frame from deviceID arrives.
func NewWebSocketPeer(deviceID string, send func(to string, data []byte) error) (*wsPeer, func(Frame)) {
	p := &wsPeer{
		deviceID: deviceID,
		send:     send,
		inbox:    make(chan Frame, 64),
		state:    StateOpen,
		closed:   make(chan struct{}),
	}
	return p, p.deliver
}

func (p *wsPeer) deliver(f Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateOpen {
		return
	}
	select {
	case p.inbox <- f:
	default:
		// Inbox full: drop rather than block the shared socket's read loop.
		// The drop is silent; no error, timeout or state change is raised
		// for the lost frame.
	}
}

func (p *wsPeer) Send(f Frame) error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	if state != StateOpen {
		return errs.New(errs.PeerDisconnected, "transport.wsPeer.Send")
	}
	if err := p.send(p.deviceID, f); err != nil {
		if websocket.IsUnexpectedCloseError(err) {
			p.Close()
			return errs.Wrap(errs.PeerDisconnected, "transport.wsPeer.Send", err)
		}
		return errs.Wrap(errs.Transport, "transport.wsPeer.Send", err)
	}
	return nil
}

func (p *wsPeer) Recv() <-chan Frame { return p.inbox }

func (p *wsPeer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *wsPeer) Closed() <-chan struct{} { return p.closed }

func (p *wsPeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateClosed {
		return nil
	}
	p.state = StateClosed
	close(p.closed)
	return nil
}

// Dial opens the rendezvous-relayed socket this device multiplexes every
// peer link over. The returned connection is driven by the rendezvous
// client (internal/rendezvous), not directly by transport callers.
func Dial(url string, log *zap.Logger) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Transport, "transport.Dial", err)
	}
	log.Info("rendezvous socket connected", zap.String("url", url))
	return conn, nil
}
