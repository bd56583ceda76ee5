// Package session implements the session registry: proposal,
// acceptance, roster tracking, and the announcement discovery table.
package session

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/errs"
	"github.com/collider/frost-wallet-node/internal/wireproto"
)

// Kind distinguishes a DKG ceremony session from a signing ceremony.
type Kind string

const (
	KindDKG     Kind = "dkg"
	KindSigning Kind = "signing"
)

// Coordination names the transport mode a session was proposed under.
type Coordination string

const (
	CoordinationOnline   Coordination = "online"
	CoordinationOffline  Coordination = "offline"
	CoordinationHybrid   Coordination = "hybrid"
)

// Session is one DKG or signing ceremony's roster and lifecycle state.
type Session struct {
	ID               string
	ProposerDeviceID string
	Total            int
	Threshold        int
	Participants     []string // ordered set, insertion order; joiners append
	Accepted         map[string]struct{}
	Kind             Kind
	Curve            string
	Coordination     Coordination
	MeshReady        bool
}

// DeriveSessionID computes the deterministic session-id for a wallet name:
// hex(sha256("FROST_SESSION_V1:" + name))[0:16], no
// timestamps or nonces, so every device proposing/accepting the same wallet
// name converges on the same id.
func DeriveSessionID(walletName string) string {
	sum := sha256.Sum256([]byte("FROST_SESSION_V1:" + walletName))
	return hex.EncodeToString(sum[:])[:16]
}

// ProposeConfig is the input to Propose.
type ProposeConfig struct {
	WalletName   string
	Total        int
	Threshold    int
	Participants []string
	Kind         Kind
	Curve        string
	Coordination Coordination
	SelfDeviceID string
}

// Announcer is the outbound half of the registry: broadcasting proposals,
// responses, updates, and announcements. The transport layer (C4) or the
// rendezvous client implements this.
type Announcer interface {
	SendProposal(to string, p wireproto.SessionProposal) error
	BroadcastAnnouncement(a wireproto.SessionAnnouncement) error
	SendResponse(to string, r wireproto.SessionResponse) error
	BroadcastUpdate(except string, u wireproto.SessionUpdate) error
}

// announcement is a cached discovery-table entry with its TTL deadline.
type announcement struct {
	info     wireproto.SessionAnnouncement
	expires  time.Time
	elem     *list.Element // LRU position, keyed by session-code
}

const (
	discoveryTTL      = 300 * time.Second
	discoveryCapacity = 1000
)

// Registry owns every session this device knows about plus the discovery
// table of announcements from other devices. All mutation happens under a
// single mutex — the registry is consumed exclusively by the single-writer
// runner (C8), but the lock makes it safe to also query from other
// goroutines (e.g. a CLI status command).
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	log      *zap.Logger

	discovery map[string]*announcement
	lru       *list.List // front = most recently touched
}

// New constructs an empty Registry.
func New(log *zap.Logger) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		discovery: make(map[string]*announcement),
		lru:       list.New(),
		log:       log,
	}
}

// Propose creates a new Session with a deterministic id, registers it
// locally, and broadcasts a SessionAnnouncement plus a targeted
// SessionProposal to every other listed participant. Fails Config if the
// threshold/total bounds are violated.
func (r *Registry) Propose(cfg ProposeConfig, walletType string, announcer Announcer) (*Session, error) {
	if cfg.Total < 2 || cfg.Threshold < 1 || cfg.Threshold > cfg.Total {
		return nil, errs.New(errs.Config, "session.Propose")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := DeriveSessionID(cfg.WalletName)
	if existing, ok := r.sessions[id]; ok {
		// Duplicate proposal for the same wallet name: first kept.
		return existing, nil
	}

	participants := dedupe(cfg.Participants)
	sess := &Session{
		ID:               id,
		ProposerDeviceID: cfg.SelfDeviceID,
		Total:            cfg.Total,
		Threshold:        cfg.Threshold,
		Participants:     participants,
		Accepted:         map[string]struct{}{cfg.SelfDeviceID: {}},
		Kind:             cfg.Kind,
		Curve:            cfg.Curve,
		Coordination:     cfg.Coordination,
	}
	r.sessions[id] = sess

	if announcer != nil {
		proposal := wireproto.SessionProposal{
			SessionID:        id,
			Total:            cfg.Total,
			Threshold:        cfg.Threshold,
			Participants:     participants,
			SessionType:      string(cfg.Kind),
			ProposerDeviceID: cfg.SelfDeviceID,
			CurveType:        cfg.Curve,
			CoordinationType: string(cfg.Coordination),
		}
		for _, p := range participants {
			if p == cfg.SelfDeviceID {
				continue
			}
			if err := announcer.SendProposal(p, proposal); err != nil {
				r.log.Warn("session proposal send failed", zap.String("to", p), zap.Error(err))
			}
		}
		ann := wireproto.SessionAnnouncement{
			SessionCode:        id,
			WalletType:         walletType,
			Threshold:          cfg.Threshold,
			Total:              cfg.Total,
			CurveType:          cfg.Curve,
			CreatorDevice:      cfg.SelfDeviceID,
			ParticipantsJoined: 1,
		}
		if err := announcer.BroadcastAnnouncement(ann); err != nil {
			r.log.Warn("session announcement broadcast failed", zap.Error(err))
		}
	}

	r.log.Info("session proposed", zap.String("session_id", id), zap.Int("total", cfg.Total), zap.Int("threshold", cfg.Threshold))
	return sess, nil
}

// Accept records acceptance of an invited session and notifies the
// proposer. Idempotent: an already-accepted device calling Accept again
// simply re-sends SessionResponse — harmless, and it re-establishes
// transport after a drop rather than being rejected as a duplicate.
func (r *Registry) Accept(sessionID, selfDeviceID string, announcer Announcer) error {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return errs.New(errs.NotFound, "session.Accept")
	}
	if !contains(sess.Participants, selfDeviceID) {
		sess.Participants = append(sess.Participants, selfDeviceID)
	}
	sess.Accepted[selfDeviceID] = struct{}{}
	proposer := sess.ProposerDeviceID
	r.mu.Unlock()

	if announcer != nil && proposer != selfDeviceID {
		return announcer.SendResponse(proposer, wireproto.SessionResponse{
			SessionID:    sessionID,
			FromDeviceID: selfDeviceID,
			Accepted:     true,
		})
	}
	return nil
}

// OnResponse is the proposer-side handler for an incoming SessionResponse:
// it adds the sender to the accepted set and roster, then rebroadcasts a
// SessionUpdate to everyone except itself (including the new joiner, so
// they learn the current roster). When every participant has accepted it
// returns true; transport establishment is then up to the caller.
func (r *Registry) OnResponse(resp wireproto.SessionResponse, announcer Announcer) (meshReady bool, err error) {
	r.mu.Lock()
	sess, ok := r.sessions[resp.SessionID]
	if !ok {
		r.mu.Unlock()
		return false, errs.New(errs.NotFound, "session.OnResponse")
	}
	if !resp.Accepted {
		r.mu.Unlock()
		return false, nil
	}
	if !contains(sess.Participants, resp.FromDeviceID) {
		sess.Participants = append(sess.Participants, resp.FromDeviceID)
	}
	sess.Accepted[resp.FromDeviceID] = struct{}{}
	ready := len(sess.Accepted) >= sess.Total
	proposer := sess.ProposerDeviceID
	participants := append([]string(nil), sess.Participants...)
	accepted := acceptedSlice(sess.Accepted)
	r.mu.Unlock()

	if announcer != nil {
		update := wireproto.SessionUpdate{
			SessionID:       resp.SessionID,
			AcceptedDevices: accepted,
			UpdateType:      "accepted",
			Timestamp:       0, // stamped by the transport layer at send time
		}
		for _, p := range participants {
			if p == proposer {
				continue
			}
			if err := announcer.BroadcastUpdate(p, update); err != nil {
				r.log.Warn("session update broadcast failed", zap.String("except", p), zap.Error(err))
			}
		}
	}
	return ready, nil
}

// OnProposal records an inbound SessionProposal as a local Session so a
// later Accept call has something to resolve. A proposal for a session-id
// already known locally (this device is itself the proposer, or the
// proposal arrived more than once) is a no-op — the existing record wins.
func (r *Registry) OnProposal(p wireproto.SessionProposal) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[p.SessionID]; ok {
		return existing
	}

	sess := &Session{
		ID:               p.SessionID,
		ProposerDeviceID: p.ProposerDeviceID,
		Total:            p.Total,
		Threshold:        p.Threshold,
		Participants:     append([]string(nil), p.Participants...),
		Accepted:         map[string]struct{}{p.ProposerDeviceID: {}},
		Kind:             Kind(p.SessionType),
		Curve:            p.CurveType,
		Coordination:     Coordination(p.CoordinationType),
	}
	r.sessions[p.SessionID] = sess
	r.log.Info("session proposal received", zap.String("session_id", p.SessionID))
	return sess
}

// Get returns a session by id.
func (r *Registry) Get(sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, errs.New(errs.NotFound, "session.Get")
	}
	return sess, nil
}

// OnAnnouncement records an inbound SessionAnnouncement into the discovery
// table, applying TTL expiry and LRU eviction (default 300s TTL, bounded
// to 1000 entries).
func (r *Registry) OnAnnouncement(a wireproto.SessionAnnouncement, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictExpired(now)

	if existing, ok := r.discovery[a.SessionCode]; ok {
		existing.info = a
		existing.expires = now.Add(discoveryTTL)
		r.lru.MoveToFront(existing.elem)
		return
	}

	if len(r.discovery) >= discoveryCapacity {
		r.evictOldest()
	}

	elem := r.lru.PushFront(a.SessionCode)
	r.discovery[a.SessionCode] = &announcement{info: a, expires: now.Add(discoveryTTL), elem: elem}
}

// Discover returns every non-expired announcement currently cached.
func (r *Registry) Discover(now time.Time) []wireproto.SessionAnnouncement {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictExpired(now)

	out := make([]wireproto.SessionAnnouncement, 0, len(r.discovery))
	for _, entry := range r.discovery {
		out = append(out, entry.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionCode < out[j].SessionCode })
	return out
}

func (r *Registry) evictExpired(now time.Time) {
	for code, entry := range r.discovery {
		if now.After(entry.expires) {
			r.lru.Remove(entry.elem)
			delete(r.discovery, code)
		}
	}
}

func (r *Registry) evictOldest() {
	oldest := r.lru.Back()
	if oldest == nil {
		return
	}
	code := oldest.Value.(string)
	r.lru.Remove(oldest)
	delete(r.discovery, code)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func contains(in []string, v string) bool {
	for _, x := range in {
		if x == v {
			return true
		}
	}
	return false
}

func acceptedSlice(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
