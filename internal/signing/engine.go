// Package signing implements the signing engine: acceptance gating,
// first-T-accepted signer selection, the two-round FROST signing protocol,
// and local verify-before-broadcast of the aggregated signature.
package signing

import (
	"crypto/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/ciphersuite"
	"github.com/collider/frost-wallet-node/internal/errs"
	"github.com/collider/frost-wallet-node/internal/identifier"
)

// State is a signing ceremony's current phase.
type State int

const (
	Idle State = iota
	AwaitingAcceptance
	CommitmentPhase
	SharePhase
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingAcceptance:
		return "AwaitingAcceptance"
	case CommitmentPhase:
		return "CommitmentPhase"
	case SharePhase:
		return "SharePhase"
	case Complete:
		return "Complete"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Sender dispatches signing-protocol wire messages. The runner wires this
// to the transport Manager.
type Sender interface {
	SendSigningRequest(to, signingID string, txBytes []byte, blockchain string, chainID *int64) error
	SendAcceptance(to, signingID string) error
	SendSignerSelection(to string, signingID string, selected []ciphersuite.Identifier) error
	BroadcastCommitment(signingID string, selected []string, selfDeviceID string, commitment []byte) error
	BroadcastShare(signingID string, selected []string, selfDeviceID string, share []byte) error
	BroadcastAggregatedSignature(signingID string, participants []string, selfDeviceID string, signature []byte) error
}

// Session holds one signing ceremony's mutable state, guarded by its own
// mutex, generalized from a single ECDSA round-2 sign to the two-round
// FROST commit/sign/aggregate protocol.
type Session struct {
	mu sync.Mutex

	SigningID   string
	Suite       ciphersuite.Suite
	IDMap       *identifier.Map
	SelfID      string
	KeyPackage  *ciphersuite.KeyPackage
	PubKey      *ciphersuite.PublicKeyPackage
	Threshold   int
	TxBytes     []byte
	Blockchain  string
	ChainID     *int64
	Initiator   string

	state  State
	reason string

	accepted       []string // insertion order — first T accepted are selected
	acceptedSet    map[string]struct{}
	selected       []string // device-ids, selection frozen once made
	ownNonces      *ciphersuite.Nonces
	commitments    map[ciphersuite.Identifier]*ciphersuite.Commitment
	shares         map[ciphersuite.Identifier]*ciphersuite.SignatureShare
	signingPackage *ciphersuite.SigningPackage

	Signature *ciphersuite.Signature

	log *zap.Logger
}

// Engine manages every active signing session, keyed by signing-id.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	log      *zap.Logger
}

// NewEngine constructs an empty Engine.
func NewEngine(log *zap.Logger) *Engine {
	return &Engine{sessions: make(map[string]*Session), log: log}
}

// Get returns a session by id.
func (e *Engine) Get(signingID string) (*Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sess, ok := e.sessions[signingID]
	if !ok {
		return nil, errs.New(errs.NotFound, "signing.Engine.Get")
	}
	return sess, nil
}

// Cleanup removes a completed or failed session.
func (e *Engine) Cleanup(signingID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, signingID)
}

// SigningIDs lists every signing-id currently tracked — used by the runner
// to project in-flight ceremonies into its UI snapshot.
func (e *Engine) SigningIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		out = append(out, id)
	}
	return out
}

func (e *Engine) register(sess *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[sess.SigningID] = sess
}

// Initiate starts a new signing ceremony as the initiator: generates the
// signing-id's session, transitions to AwaitingAcceptance with accepted-set
// = {self}, and broadcasts SigningRequest to every other participant.
func (e *Engine) Initiate(signingID string, suite ciphersuite.Suite, idMap *identifier.Map, selfDeviceID string, kp *ciphersuite.KeyPackage, pub *ciphersuite.PublicKeyPackage, threshold int, txBytes []byte, blockchain string, chainID *int64, sender Sender) (*Session, error) {
	sess := &Session{
		SigningID:   signingID,
		Suite:       suite,
		IDMap:       idMap,
		SelfID:      selfDeviceID,
		KeyPackage:  kp,
		PubKey:      pub,
		Threshold:   threshold,
		TxBytes:     txBytes,
		Blockchain:  blockchain,
		ChainID:     chainID,
		Initiator:   selfDeviceID,
		state:       AwaitingAcceptance,
		accepted:    []string{selfDeviceID},
		acceptedSet: map[string]struct{}{selfDeviceID: {}},
		commitments: make(map[ciphersuite.Identifier]*ciphersuite.Commitment),
		shares:      make(map[ciphersuite.Identifier]*ciphersuite.SignatureShare),
		log:         e.log,
	}
	e.register(sess)

	for _, deviceID := range idMap.Devices() {
		if deviceID == selfDeviceID {
			continue
		}
		if err := sender.SendSigningRequest(deviceID, signingID, txBytes, blockchain, chainID); err != nil {
			e.log.Warn("signing request send failed", zap.String("to", deviceID), zap.Error(err))
		}
	}
	e.log.Info("signing initiated", zap.String("signing_id", signingID), zap.Int("threshold", threshold))
	return sess, nil
}

// OnSigningRequest is the non-initiator handler for an inbound
// SigningRequest: transitions to AwaitingAcceptance with accepted-set =
// {from} (the initiator has implicitly accepted by initiating).
func (e *Engine) OnSigningRequest(signingID, from string, suite ciphersuite.Suite, idMap *identifier.Map, selfDeviceID string, kp *ciphersuite.KeyPackage, pub *ciphersuite.PublicKeyPackage, threshold int, txBytes []byte, blockchain string, chainID *int64) (*Session, error) {
	sess := &Session{
		SigningID:   signingID,
		Suite:       suite,
		IDMap:       idMap,
		SelfID:      selfDeviceID,
		KeyPackage:  kp,
		PubKey:      pub,
		Threshold:   threshold,
		TxBytes:     txBytes,
		Blockchain:  blockchain,
		ChainID:     chainID,
		Initiator:   from,
		state:       AwaitingAcceptance,
		accepted:    []string{from},
		acceptedSet: map[string]struct{}{from: {}},
		commitments: make(map[ciphersuite.Identifier]*ciphersuite.Commitment),
		shares:      make(map[ciphersuite.Identifier]*ciphersuite.SignatureShare),
		log:         e.log,
	}
	e.register(sess)
	return sess, nil
}

// AcceptSigning records this device's acceptance and notifies the
// initiator. Idempotent: re-accepting an already-accepted signing-id is a
// no-op rather than an error.
func (s *Session) AcceptSigning(sender Sender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != AwaitingAcceptance {
		return errs.New(errs.Config, "signing.Session.AcceptSigning")
	}
	if _, already := s.acceptedSet[s.SelfID]; already {
		return nil
	}
	s.acceptedSet[s.SelfID] = struct{}{}
	s.accepted = append(s.accepted, s.SelfID)

	if s.Initiator == s.SelfID {
		return nil
	}
	return sender.SendAcceptance(s.Initiator, s.SigningID)
}

// OnSigningAcceptance is the initiator-only handler for an inbound
// SigningAcceptance. Once |accepted| >= T, the first T accepted device-ids
// (insertion order) are selected, mapped to identifiers, and
// InitiateFrostRound1 runs; every other device that has accepted so far,
// selected or not, is sent SignerSelection.
func (s *Session) OnSigningAcceptance(from string, sender Sender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != AwaitingAcceptance {
		return nil
	}
	if s.Initiator != s.SelfID {
		return nil // only the initiator processes acceptances
	}
	if _, already := s.acceptedSet[from]; !already {
		s.acceptedSet[from] = struct{}{}
		s.accepted = append(s.accepted, from)
	}

	if len(s.accepted) < s.Threshold {
		return nil
	}

	selected := append([]string(nil), s.accepted[:s.Threshold]...)
	s.selected = selected
	s.log.Info("signer selection made", zap.String("signing_id", s.SigningID), zap.Strings("selected", selected))

	selectedIDs := make([]ciphersuite.Identifier, 0, len(selected))
	for _, d := range selected {
		id, err := s.IDMap.IdentifierFor(d)
		if err != nil {
			s.fail("roster mismatch resolving selected signer")
			return err
		}
		selectedIDs = append(selectedIDs, id)
	}

	for _, d := range s.accepted {
		if d == s.SelfID {
			continue
		}
		if err := sender.SendSignerSelection(d, s.SigningID, selectedIDs); err != nil {
			s.log.Warn("signer selection send failed", zap.String("to", d), zap.Error(err))
		}
	}

	return s.initiateFrostRound1Locked(sender)
}

// initiateFrostRound1Locked must be called with s.mu held.
func (s *Session) initiateFrostRound1Locked(sender Sender) error {
	nonces, commitment, err := s.Suite.SigningCommit(s.KeyPackage, rand.Reader)
	if err != nil {
		s.fail("signing_commit failed")
		return errs.Wrap(errs.CryptoDecode, "signing.Session.initiateFrostRound1", err)
	}
	s.ownNonces = nonces
	s.state = CommitmentPhase

	selfID, err := s.IDMap.IdentifierFor(s.SelfID)
	if err != nil {
		s.fail("roster mismatch resolving self")
		return err
	}
	s.commitments[selfID] = commitment

	payload, err := s.Suite.SerializeCommitment(commitment)
	if err != nil {
		s.fail("commitment serialize failed")
		return err
	}
	if err := sender.BroadcastCommitment(s.SigningID, s.selected, s.SelfID, payload); err != nil {
		s.log.Warn("commitment broadcast failed", zap.Error(err))
	}
	return nil
}

// OnSignerSelection is the non-initiator handler for the SignerSelection
// broadcast. Devices not in the selected set record it for informational
// purposes only; each selected device (other than the initiator, who
// already ran this locally) triggers its own FROST round 1.
func (s *Session) OnSignerSelection(selectedDeviceIDs []string, sender Sender) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = selectedDeviceIDs
	if s.state != AwaitingAcceptance || !contains(selectedDeviceIDs, s.SelfID) {
		return nil
	}
	return s.initiateFrostRound1Locked(sender)
}

// OnSigningCommitment handles an inbound commitment from a selected signer.
// A commitment from a non-selected identifier is dropped. When all T
// commitments are in, transitions to SharePhase: builds the SigningPackage,
// signs locally, and broadcasts the own SignatureShare.
func (s *Session) OnSigningCommitment(from string, payload []byte, sender Sender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != CommitmentPhase {
		return nil
	}
	fromID, err := s.IDMap.IdentifierFor(from)
	if err != nil {
		return err
	}
	if s.selected != nil && !contains(s.selected, from) {
		s.log.Debug("commitment from non-selected signer dropped", zap.String("from", from))
		return nil
	}
	if _, dup := s.commitments[fromID]; dup {
		return nil
	}
	commitment, err := s.Suite.DeserializeCommitment(payload)
	if err != nil {
		s.fail("commitment deserialize failed")
		return err
	}
	s.commitments[fromID] = commitment

	if len(s.commitments) < s.Threshold {
		return nil
	}

	pkg, err := s.Suite.BuildSigningPackage(s.commitments, s.TxBytes)
	if err != nil {
		s.fail("build_signing_package failed")
		return err
	}
	s.signingPackage = pkg
	s.state = SharePhase

	share, err := s.Suite.Sign(pkg, s.ownNonces, s.KeyPackage)
	if err != nil {
		s.fail("sign failed")
		return errs.Wrap(errs.CryptoDecode, "signing.Session.OnSigningCommitment", err)
	}
	selfID, _ := s.IDMap.IdentifierFor(s.SelfID)
	s.shares[selfID] = share

	sharePayload, err := s.Suite.SerializeSignatureShare(share)
	if err != nil {
		s.fail("share serialize failed")
		return err
	}
	if err := sender.BroadcastShare(s.SigningID, s.selected, s.SelfID, sharePayload); err != nil {
		s.log.Warn("share broadcast failed", zap.Error(err))
	}
	return nil
}

// OnSignatureShare handles an inbound signature share. The initiator
// aggregates once T shares are in, verifies locally, and broadcasts the
// aggregated signature; non-initiators simply record shares (they learn
// the final signature via OnAggregatedSignature).
func (s *Session) OnSignatureShare(from string, payload []byte, sender Sender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SharePhase {
		return nil
	}
	fromID, err := s.IDMap.IdentifierFor(from)
	if err != nil {
		return err
	}
	if _, dup := s.shares[fromID]; dup {
		return nil
	}
	share, err := s.Suite.DeserializeSignatureShare(payload)
	if err != nil {
		s.fail("share deserialize failed")
		return err
	}
	s.shares[fromID] = share

	if s.Initiator != s.SelfID || len(s.shares) < s.Threshold {
		return nil
	}

	sig, err := s.Suite.Aggregate(s.signingPackage, s.shares, s.PubKey)
	if err != nil {
		s.fail("aggregate failed")
		return errs.Wrap(errs.DkgIntegrity, "signing.Session.OnSignatureShare", err)
	}
	if !s.Suite.Verify(s.PubKey, s.TxBytes, sig) {
		s.fail("local signature verification failed")
		return errs.New(errs.DkgIntegrity, "signing.Session.OnSignatureShare")
	}
	s.Signature = sig
	s.state = Complete

	sigPayload, err := s.Suite.SerializeSignature(sig)
	if err != nil {
		s.fail("signature serialize failed")
		return err
	}
	if err := sender.BroadcastAggregatedSignature(s.SigningID, s.selected, s.SelfID, sigPayload); err != nil {
		s.log.Warn("aggregated signature broadcast failed", zap.Error(err))
	}
	s.log.Info("signing complete", zap.String("signing_id", s.SigningID))
	return nil
}

// OnAggregatedSignature is the non-initiator handler: verify and record.
func (s *Session) OnAggregatedSignature(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, err := s.Suite.DeserializeSignature(payload)
	if err != nil {
		s.fail("aggregated signature deserialize failed")
		return err
	}
	if !s.Suite.Verify(s.PubKey, s.TxBytes, sig) {
		s.fail("aggregated signature verification failed")
		return errs.New(errs.DkgIntegrity, "signing.Session.OnAggregatedSignature")
	}
	s.Signature = sig
	s.state = Complete
	return nil
}

// State returns the session's current phase and failure reason, if any.
func (s *Session) State() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.reason
}

func (s *Session) fail(reason string) {
	s.state = Failed
	s.reason = reason
}

func contains(in []string, v string) bool {
	for _, x := range in {
		if x == v {
			return true
		}
	}
	return false
}
