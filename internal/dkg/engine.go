// Package dkg implements the distributed key generation engine: the Round1/Round2/Finalize
// state machine driving a Ciphersuite through a full FROST key-generation
// ceremony over a roster resolved by the Identifier Map.
package dkg

import (
	"crypto/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/ciphersuite"
	"github.com/collider/frost-wallet-node/internal/errs"
	"github.com/collider/frost-wallet-node/internal/identifier"
)

// State is the DKG ceremony's current phase.
type State int

const (
	Idle State = iota
	Round1InProgress
	Round1Complete
	Round2InProgress
	Round2Complete
	Finalizing
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Round1InProgress:
		return "Round1InProgress"
	case Round1Complete:
		return "Round1Complete"
	case Round2InProgress:
		return "Round2InProgress"
	case Round2Complete:
		return "Round2Complete"
	case Finalizing:
		return "Finalizing"
	case Complete:
		return "Complete"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Sender broadcasts (or directs) a serialized round package to other
// participants. The DKG engine calls through it; the runner wires it to the
// transport Manager.
type Sender interface {
	BroadcastR1(sessionID string, pkg []byte) error
	SendR2(sessionID, toDeviceID string, pkg []byte) error
}

// Session holds one DKG ceremony's full mutable state, guarded by its own
// mutex, with the round bodies calling the Ciphersuite instead of
// generating simulated random bytes.
type Session struct {
	mu sync.Mutex

	SessionID string
	Suite     ciphersuite.Suite
	IDMap     *identifier.Map
	SelfID    string
	Threshold int
	Total     int

	state State
	reason string

	secretR1 *ciphersuite.SecretR1
	secretR2 *ciphersuite.SecretR2
	r1       map[ciphersuite.Identifier]*ciphersuite.PublicR1
	r2       map[ciphersuite.Identifier]*ciphersuite.PublicR2

	KeyPackage       *ciphersuite.KeyPackage
	PublicKeyPackage *ciphersuite.PublicKeyPackage

	log *zap.Logger
}

// Engine manages every active DKG session this device knows about, keyed by
// session-id, with round bodies driven through the Ciphersuite rather than
// simulated locally.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	log      *zap.Logger
}

// NewEngine constructs an empty Engine.
func NewEngine(log *zap.Logger) *Engine {
	return &Engine{sessions: make(map[string]*Session), log: log}
}

// Create registers a new DKG session in Idle state, without triggering
// round 1. Creating the session ahead of time (typically as soon as the
// session's mesh-ready gate fires) lets OnR1Package buffer early arrivals
// from participants whose own TriggerRound1 call landed first — otherwise
// there would be nowhere to store those packages.
func (e *Engine) Create(sessionID string, suite ciphersuite.Suite, idMap *identifier.Map, selfDeviceID string, threshold int) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.sessions[sessionID]; exists {
		return nil, errs.New(errs.Config, "dkg.Engine.Create")
	}
	sess := &Session{
		SessionID: sessionID,
		Suite:     suite,
		IDMap:     idMap,
		SelfID:    selfDeviceID,
		Threshold: threshold,
		Total:     idMap.Len(),
		state:     Idle,
		r1:        make(map[ciphersuite.Identifier]*ciphersuite.PublicR1),
		r2:        make(map[ciphersuite.Identifier]*ciphersuite.PublicR2),
		log:       e.log,
	}
	e.sessions[sessionID] = sess
	return sess, nil
}

// Start creates a session and immediately triggers round 1 — a convenience
// for the common case where this device is the one initiating the
// ceremony and no other participant's packages could possibly have arrived
// first.
func (e *Engine) Start(sessionID string, suite ciphersuite.Suite, idMap *identifier.Map, selfDeviceID string, threshold int, sender Sender) (*Session, error) {
	sess, err := e.Create(sessionID, suite, idMap, selfDeviceID, threshold)
	if err != nil {
		return nil, err
	}
	if err := sess.triggerRound1(sender); err != nil {
		return nil, err
	}
	return sess, nil
}

// TriggerRound1 runs this device's own round-1 computation on an
// already-created session (see Create).
func (s *Session) TriggerRound1(sender Sender) error {
	return s.triggerRound1(sender)
}

// Get returns a session by id.
func (e *Engine) Get(sessionID string) (*Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sess, ok := e.sessions[sessionID]
	if !ok {
		return nil, errs.New(errs.NotFound, "dkg.Engine.Get")
	}
	return sess, nil
}

// Cleanup removes a completed or failed session from the engine.
func (e *Engine) Cleanup(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, sessionID)
}

// State returns the session's current phase (and failure reason, if any).
func (s *Session) State() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.reason
}

func (s *Session) fail(reason string) {
	s.state = Failed
	s.reason = reason
	s.secretR1 = nil
	s.secretR2 = nil
	s.r1 = make(map[ciphersuite.Identifier]*ciphersuite.PublicR1)
	s.r2 = make(map[ciphersuite.Identifier]*ciphersuite.PublicR2)
}

// triggerRound1 computes this device's own round-1 package, stores it under
// its own identifier (so the collection is indexed by all N identifiers,
// not N-1), and broadcasts it.
func (s *Session) triggerRound1(sender Sender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle {
		return errs.New(errs.Config, "dkg.Session.triggerRound1")
	}

	selfID, err := s.IDMap.IdentifierFor(s.SelfID)
	if err != nil {
		s.fail("roster mismatch resolving self")
		return err
	}

	secret, pub, err := s.Suite.DKGPart1(selfID, s.Total, s.Threshold, rand.Reader)
	if err != nil {
		s.fail("dkg_part1 failed")
		return errs.Wrap(errs.DkgIntegrity, "dkg.Session.triggerRound1", err)
	}
	s.secretR1 = secret
	s.r1[selfID] = pub
	s.state = Round1InProgress

	payload, err := s.Suite.SerializeRound1(pub)
	if err != nil {
		s.fail("round1 serialize failed")
		return err
	}
	if err := sender.BroadcastR1(s.SessionID, payload); err != nil {
		s.log.Warn("round1 broadcast failed", zap.String("session_id", s.SessionID), zap.Error(err))
	}
	s.log.Info("dkg round1 triggered", zap.String("session_id", s.SessionID), zap.Uint16("self_id", selfID))
	return nil
}

// OnR1Package handles an inbound round-1 broadcast from another
// participant. First-write-wins: a duplicate arrival for an identifier
// already recorded is logged and dropped rather than erroring.
func (s *Session) OnR1Package(fromDeviceID string, payload []byte, sender Sender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Idle && s.state != Round1InProgress {
		// Arrivals before TriggerRound1 has run locally are legitimately
		// buffered: treat Idle the same as Round1InProgress here so a
		// slower-starting joiner still converges.
		return errs.New(errs.Config, "dkg.Session.OnR1Package")
	}

	fromID, err := s.IDMap.IdentifierFor(fromDeviceID)
	if err != nil {
		s.fail("roster mismatch on round1 package")
		return err
	}
	if _, dup := s.r1[fromID]; dup {
		s.log.Debug("duplicate round1 package dropped", zap.String("session_id", s.SessionID), zap.Uint16("from_id", fromID))
		return nil
	}

	pkg, err := s.Suite.DeserializeRound1(payload)
	if err != nil {
		s.fail("round1 deserialize failed")
		return err
	}
	s.r1[fromID] = pkg

	if s.state == Idle {
		s.state = Round1InProgress
	}

	if len(s.r1) == s.Total {
		s.state = Round1Complete
		s.log.Info("dkg round1 complete", zap.String("session_id", s.SessionID))
		return s.triggerRound2Locked(sender)
	}
	return nil
}

// triggerRound2Locked requires Round1Complete and must be called with s.mu
// held.
func (s *Session) triggerRound2Locked(sender Sender) error {
	if s.state != Round1Complete {
		return errs.New(errs.Config, "dkg.Session.triggerRound2")
	}

	others := make(map[ciphersuite.Identifier]*ciphersuite.PublicR1, s.Total-1)
	selfID, _ := s.IDMap.IdentifierFor(s.SelfID)
	for id, pkg := range s.r1 {
		if id == selfID {
			continue
		}
		others[id] = pkg
	}

	secret2, perRecipient, err := s.Suite.DKGPart2(s.secretR1, others)
	if err != nil {
		s.fail("dkg_part2 failed")
		return errs.Wrap(errs.DkgIntegrity, "dkg.Session.triggerRound2", err)
	}
	s.secretR2 = secret2
	s.state = Round2InProgress

	for recipientID, pkg := range perRecipient {
		deviceID, err := s.IDMap.DeviceFor(recipientID)
		if err != nil {
			s.log.Warn("round2 recipient resolution failed", zap.Uint16("identifier", recipientID), zap.Error(err))
			continue
		}
		payload, err := s.Suite.SerializeRound2(pkg)
		if err != nil {
			s.fail("round2 serialize failed")
			return err
		}
		if err := sender.SendR2(s.SessionID, deviceID, payload); err != nil {
			s.log.Warn("round2 send failed", zap.String("to", deviceID), zap.Error(err))
		}
	}
	s.log.Info("dkg round2 triggered", zap.String("session_id", s.SessionID))
	return nil
}

// OnR2Package handles an inbound round-2 private share addressed to this
// device. When N-1 shares have arrived, Finalize runs automatically.
func (s *Session) OnR2Package(fromDeviceID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Round2InProgress {
		return errs.New(errs.Config, "dkg.Session.OnR2Package")
	}

	fromID, err := s.IDMap.IdentifierFor(fromDeviceID)
	if err != nil {
		s.fail("roster mismatch on round2 package")
		return err
	}
	if _, dup := s.r2[fromID]; dup {
		s.log.Debug("duplicate round2 package dropped", zap.String("session_id", s.SessionID), zap.Uint16("from_id", fromID))
		return nil
	}

	pkg, err := s.Suite.DeserializeRound2(payload)
	if err != nil {
		s.fail("round2 deserialize failed")
		return err
	}
	s.r2[fromID] = pkg

	if len(s.r2) >= s.Total-1 {
		s.state = Round2Complete
		s.log.Info("dkg round2 complete", zap.String("session_id", s.SessionID))
		return s.finalizeLocked()
	}
	return nil
}

// finalizeLocked requires Round2Complete and must be called with s.mu held.
func (s *Session) finalizeLocked() error {
	if s.state != Round2Complete {
		return errs.New(errs.Config, "dkg.Session.finalize")
	}
	s.state = Finalizing

	selfID, _ := s.IDMap.IdentifierFor(s.SelfID)
	others := make(map[ciphersuite.Identifier]*ciphersuite.PublicR1, s.Total-1)
	for id, pkg := range s.r1 {
		if id == selfID {
			continue
		}
		others[id] = pkg
	}

	kp, pub, err := s.Suite.DKGPart3(s.secretR2, others, s.r2)
	if err != nil {
		s.fail("dkg_part3 failed")
		return errs.Wrap(errs.DkgIntegrity, "dkg.Session.finalize", err)
	}

	s.KeyPackage = kp
	s.PublicKeyPackage = pub
	s.state = Complete
	s.secretR1 = nil
	s.secretR2 = nil
	s.r1 = nil
	s.r2 = nil
	s.log.Info("dkg complete", zap.String("session_id", s.SessionID), zap.String("curve", string(kp.Curve)))
	return nil
}
