package rendezvous

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/errs"
	"github.com/collider/frost-wallet-node/internal/transport"
	"github.com/collider/frost-wallet-node/internal/wireproto"
)

// Client is one device's connection to a Server. It implements
// session.Announcer directly (signalling-layer sends, pre-mesh) and is
// wrapped per-peer by transport.NewWebSocketPeer for mesh-layer traffic
// once a session's roster is known.
type Client struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	deviceID string
	log      *zap.Logger
}

// Connect dials the rendezvous server and registers deviceID.
func Connect(url, deviceID string, log *zap.Logger) (*Client, error) {
	conn, err := transport.Dial(url, log)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: conn, deviceID: deviceID, log: log}

	msg, err := wireproto.EncodeClientMsg(wireproto.ClientRegister, wireproto.Register{DeviceID: deviceID})
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "rendezvous.Connect", err)
	}
	if err := c.write(msg); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) write(msg *wireproto.ClientMsg) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		return errs.Wrap(errs.Transport, "rendezvous.Client.write", err)
	}
	return nil
}

// Relay sends raw bytes to one device (or "*" to broadcast). Its signature
// matches transport.NewWebSocketPeer's send callback, so a Client can back
// a session's mesh PeerChannels directly.
func (c *Client) Relay(to string, data []byte) error {
	msg, err := wireproto.EncodeClientMsg(wireproto.ClientRelay, wireproto.Relay{To: to, Data: data})
	if err != nil {
		return errs.Wrap(errs.CryptoDecode, "rendezvous.Client.Relay", err)
	}
	return c.write(msg)
}

// AnnounceSession publishes a SessionAnnouncement to the server's discovery
// table.
func (c *Client) AnnounceSession(a wireproto.SessionAnnouncement) error {
	msg, err := wireproto.EncodeClientMsg(wireproto.ClientAnnounceSession, wireproto.AnnounceSession{SessionInfo: a})
	if err != nil {
		return errs.Wrap(errs.CryptoDecode, "rendezvous.Client.AnnounceSession", err)
	}
	return c.write(msg)
}

// RequestActiveSessions asks the server for its current discovery-table
// snapshot; the reply arrives asynchronously as a ServerActiveSessions
// frame through Run's onActiveSessions callback.
func (c *Client) RequestActiveSessions() error {
	msg, err := wireproto.EncodeClientMsg(wireproto.ClientRequestActiveSessions, nil)
	if err != nil {
		return errs.Wrap(errs.CryptoDecode, "rendezvous.Client.RequestActiveSessions", err)
	}
	return c.write(msg)
}

func (c *Client) relayEnvelope(to string, t wireproto.Type, payload any) error {
	envelope, err := wireproto.Encode(t, payload)
	if err != nil {
		return errs.Wrap(errs.CryptoDecode, "rendezvous.Client.relayEnvelope", err)
	}
	data, err := marshalEnvelope(envelope)
	if err != nil {
		return err
	}
	return c.Relay(to, data)
}

// SendProposal implements session.Announcer.
func (c *Client) SendProposal(to string, p wireproto.SessionProposal) error {
	return c.relayEnvelope(to, wireproto.TypeSessionProposal, p)
}

// BroadcastAnnouncement implements session.Announcer.
func (c *Client) BroadcastAnnouncement(a wireproto.SessionAnnouncement) error {
	return c.relayEnvelope("*", wireproto.TypeSessionAnnouncement, a)
}

// SendResponse implements session.Announcer.
func (c *Client) SendResponse(to string, r wireproto.SessionResponse) error {
	return c.relayEnvelope(to, wireproto.TypeSessionResponse, r)
}

// BroadcastUpdate implements session.Announcer. Despite the parameter name
// inherited from the registry's call site, "except" here is the single
// recipient for this particular send — the registry invokes it once per
// roster member it wants to notify, never once for the whole roster.
func (c *Client) BroadcastUpdate(except string, u wireproto.SessionUpdate) error {
	return c.relayEnvelope(except, wireproto.TypeSessionUpdate, u)
}

// Callbacks bundles the handlers Run dispatches decoded server frames to.
type Callbacks struct {
	OnRelay          func(from string, envelope *wireproto.WebSocketMessage)
	OnMeshFrame      func(from string, data []byte) // raw WebRTCMessage-shaped bytes for a session's PeerChannel demux
	OnDevices        func(devices []string)
	OnActiveSessions func(sessions []wireproto.SessionAnnouncement)
	OnError          func(reason string)
}

// Run reads ServerMsg frames until the connection closes or ctx-like
// cancellation happens via Close, dispatching each to the matching
// Callbacks field. A Relay frame is tried first as a WebSocketMessage
// (signalling layer); if that fails to decode it is handed to OnMeshFrame
// as an opaque frame for per-peer demuxing (mesh layer).
func (c *Client) Run(cb Callbacks) error {
	for {
		var msg wireproto.ServerMsg
		if err := c.conn.ReadJSON(&msg); err != nil {
			return errs.Wrap(errs.PeerDisconnected, "rendezvous.Client.Run", err)
		}

		switch msg.Type {
		case wireproto.ServerRelay:
			var rel wireproto.ServerRelayMsg
			if err := msg.Decode(&rel); err != nil {
				continue
			}
			var envelope wireproto.WebSocketMessage
			if err := unmarshalEnvelope(rel.Data, &envelope); err == nil && envelope.Type != "" {
				if cb.OnRelay != nil {
					cb.OnRelay(rel.From, &envelope)
				}
				continue
			}
			if cb.OnMeshFrame != nil {
				cb.OnMeshFrame(rel.From, rel.Data)
			}

		case wireproto.ServerDevices:
			var d wireproto.Devices
			if err := msg.Decode(&d); err == nil && cb.OnDevices != nil {
				cb.OnDevices(d.Devices)
			}

		case wireproto.ServerActiveSessions:
			var a wireproto.ActiveSessions
			if err := msg.Decode(&a); err == nil && cb.OnActiveSessions != nil {
				cb.OnActiveSessions(a.Sessions)
			}

		case wireproto.ServerError:
			var e wireproto.Error
			if err := msg.Decode(&e); err == nil && cb.OnError != nil {
				cb.OnError(e.Error)
			}
		}
	}
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }
