package wireproto

import (
	"encoding/json"

	"github.com/collider/frost-wallet-node/internal/errs"
)

// ClientMsgType tags the payload of a message sent from a device to the
// rendezvous server.
type ClientMsgType string

const (
	ClientRegister              ClientMsgType = "register"
	ClientRelay                 ClientMsgType = "relay"
	ClientAnnounceSession       ClientMsgType = "announce_session"
	ClientRequestActiveSessions ClientMsgType = "request_active_sessions"
)

// ClientMsg is the tagged envelope a device sends to the rendezvous server.
type ClientMsg struct {
	Type ClientMsgType   `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// EncodeClientMsg marshals a typed client payload into a ClientMsg envelope.
func EncodeClientMsg(t ClientMsgType, payload any) (*ClientMsg, error) {
	if payload == nil {
		return &ClientMsg{Type: t}, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "wireproto.EncodeClientMsg", err)
	}
	return &ClientMsg{Type: t, Body: body}, nil
}

// Decode unmarshals the envelope body into dst.
func (m *ClientMsg) Decode(dst any) error {
	if err := json.Unmarshal(m.Body, dst); err != nil {
		return errs.Wrap(errs.CryptoDecode, "wireproto.ClientMsg.Decode", err)
	}
	return nil
}

// Register identifies the connecting device to the rendezvous server.
type Register struct {
	DeviceID string `json:"device_id"`
}

// Relay asks the server to forward data to another device (or "*" to
// broadcast to every other registered device).
type Relay struct {
	To   string          `json:"to"`
	Data json.RawMessage `json:"data"`
}

// AnnounceSession publishes a SessionAnnouncement to the server's discovery
// table.
type AnnounceSession struct {
	SessionInfo SessionAnnouncement `json:"session_info"`
}

// ServerMsgType tags the payload of a message sent from the rendezvous
// server back to a device.
type ServerMsgType string

const (
	ServerDevices        ServerMsgType = "devices"
	ServerRelay          ServerMsgType = "relay"
	ServerError          ServerMsgType = "error"
	ServerActiveSessions ServerMsgType = "active_sessions"
)

// ServerMsg is the tagged envelope the rendezvous server sends to a device.
type ServerMsg struct {
	Type ServerMsgType   `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// EncodeServerMsg marshals a typed server payload into a ServerMsg envelope.
func EncodeServerMsg(t ServerMsgType, payload any) (*ServerMsg, error) {
	if payload == nil {
		return &ServerMsg{Type: t}, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "wireproto.EncodeServerMsg", err)
	}
	return &ServerMsg{Type: t, Body: body}, nil
}

// Decode unmarshals the envelope body into dst.
func (m *ServerMsg) Decode(dst any) error {
	if err := json.Unmarshal(m.Body, dst); err != nil {
		return errs.Wrap(errs.CryptoDecode, "wireproto.ServerMsg.Decode", err)
	}
	return nil
}

// Devices lists every device currently registered with the server.
type Devices struct {
	Devices []string `json:"devices"`
}

// ServerRelayMsg is the server->client form of Relay: the original sender is
// attached since "to" is resolved server-side.
type ServerRelayMsg struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

// Error reports a server-side rejection of a ClientMsg (unknown recipient,
// malformed payload, etc).
type Error struct {
	Error string `json:"error"`
}

// ActiveSessions answers a RequestActiveSessions with the server's current
// discovery-table snapshot.
type ActiveSessions struct {
	Sessions []SessionAnnouncement `json:"sessions"`
}
