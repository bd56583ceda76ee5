// Package rendezvous implements the signalling relay server: a
// deliberately dumb WebSocket relay that never inspects DKG or signing
// payloads, only the ClientMsg/ServerMsg envelope, plus the Client used by
// a node to dial it.
package rendezvous

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/session"
	"github.com/collider/frost-wallet-node/internal/wireproto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the signalling relay: a device registry keyed by device-id and
// a discovery-table cache reused from the client-side session.Registry —
// the server's active-sessions index shares the same TTL/LRU discipline as
// the client-side discovery table, since it too is a convenience cache
// rather than a source of truth.
type Server struct {
	mu        sync.Mutex
	conns     map[string]*websocket.Conn
	discovery *session.Registry
	log       *zap.Logger
}

// NewServer constructs an empty Server.
func NewServer(log *zap.Logger) *Server {
	return &Server{
		conns:     make(map[string]*websocket.Conn),
		discovery: session.New(log),
		log:       log,
	}
}

// Handler returns the http.Handler to mount at the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	deviceID := s.readLoop(conn)
	if deviceID != "" {
		s.deregister(deviceID)
	}
}

// readLoop processes ClientMsg frames until the connection closes, and
// returns the device-id it was registered under (empty if it never
// registered).
func (s *Server) readLoop(conn *websocket.Conn) string {
	var deviceID string
	for {
		var msg wireproto.ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return deviceID
		}

		switch msg.Type {
		case wireproto.ClientRegister:
			var reg wireproto.Register
			if err := msg.Decode(&reg); err != nil || reg.DeviceID == "" {
				s.sendError(conn, "invalid register message")
				continue
			}
			deviceID = reg.DeviceID
			s.register(deviceID, conn)
			s.sendDevices(conn)

		case wireproto.ClientRelay:
			if deviceID == "" {
				s.sendError(conn, "must register before relaying")
				continue
			}
			var rel wireproto.Relay
			if err := msg.Decode(&rel); err != nil {
				s.sendError(conn, "invalid relay message")
				continue
			}
			s.relay(deviceID, rel)

		case wireproto.ClientAnnounceSession:
			var ann wireproto.AnnounceSession
			if err := msg.Decode(&ann); err != nil {
				s.sendError(conn, "invalid announce message")
				continue
			}
			s.discovery.OnAnnouncement(ann.SessionInfo, time.Now())

		case wireproto.ClientRequestActiveSessions:
			sessions := s.discovery.Discover(time.Now())
			s.send(conn, wireproto.ServerActiveSessions, wireproto.ActiveSessions{Sessions: sessions})

		default:
			s.sendError(conn, "unknown message type")
		}
	}
}

func (s *Server) register(deviceID string, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[deviceID] = conn
	s.log.Info("device registered", zap.String("device_id", deviceID))
}

func (s *Server) deregister(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Connection loss deregisters the device silently — peer liveness is
	// the data-channel's concern, not the rendezvous server's.
	delete(s.conns, deviceID)
	s.log.Info("device deregistered", zap.String("device_id", deviceID))
}

// relay forwards rel.Data to rel.To, or to every other registered
// connection when rel.To == "*". Unregistered targets are reported back to
// the sender with ServerMsg::Error rather than silently dropped.
func (s *Server) relay(from string, rel wireproto.Relay) {
	s.mu.Lock()
	var targets []*websocket.Conn
	if rel.To == "*" {
		for id, c := range s.conns {
			if id == from {
				continue
			}
			targets = append(targets, c)
		}
	} else if c, ok := s.conns[rel.To]; ok {
		targets = append(targets, c)
	} else {
		sender := s.conns[from]
		s.mu.Unlock()
		if sender != nil {
			s.sendError(sender, "unknown recipient device")
		}
		return
	}
	s.mu.Unlock()

	for _, c := range targets {
		s.send(c, wireproto.ServerRelay, wireproto.ServerRelayMsg{From: from, Data: rel.Data})
	}
}

func (s *Server) sendDevices(conn *websocket.Conn) {
	s.mu.Lock()
	devices := make([]string, 0, len(s.conns))
	for id := range s.conns {
		devices = append(devices, id)
	}
	s.mu.Unlock()
	s.send(conn, wireproto.ServerDevices, wireproto.Devices{Devices: devices})
}

func (s *Server) sendError(conn *websocket.Conn, reason string) {
	s.send(conn, wireproto.ServerError, wireproto.Error{Error: reason})
}

func (s *Server) send(conn *websocket.Conn, t wireproto.ServerMsgType, payload any) {
	msg, err := wireproto.EncodeServerMsg(t, payload)
	if err != nil {
		s.log.Warn("failed to encode server message", zap.Error(err))
		return
	}
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Debug("failed to write server message", zap.Error(err))
	}
}
