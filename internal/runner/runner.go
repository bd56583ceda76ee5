package runner

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/ciphersuite"
	"github.com/collider/frost-wallet-node/internal/dkg"
	"github.com/collider/frost-wallet-node/internal/errs"
	"github.com/collider/frost-wallet-node/internal/identifier"
	"github.com/collider/frost-wallet-node/internal/keystore"
	"github.com/collider/frost-wallet-node/internal/rendezvous"
	"github.com/collider/frost-wallet-node/internal/session"
	"github.com/collider/frost-wallet-node/internal/signing"
	"github.com/collider/frost-wallet-node/internal/transport"
	"github.com/collider/frost-wallet-node/internal/wireproto"
)

// Runner is the single writer to every piece of ceremony state this device
// holds: one command-loop goroutine drains cmdCh and is the only
// goroutine that ever touches the registry, the DKG/signing engines, or the
// mesh transport Manager. Every other goroutine (the rendezvous client's
// read loop, the CLI) only ever sends Commands in or reads a published
// Snapshot — never mutates state directly.
type Runner struct {
	log    *zap.Logger
	selfID string

	client   *rendezvous.Client
	registry *session.Registry
	dkgEng   *dkg.Engine
	signEng  *signing.Engine
	store    *keystore.Store
	manager  *transport.Manager
	suites   map[string]ciphersuite.Suite

	dkgSend  *dkgSender
	signSend *signingSender

	cmdCh chan Command
	done  chan struct{}

	// activeDKG is the single in-flight DKG ceremony's session-id. Only one
	// DKG ceremony may be in flight at a time on a given node (see
	// DESIGN.md): round-1/round-2 wire frames carry no session-id, so a
	// second concurrent ceremony with an overlapping peer would have no way
	// to demultiplex inbound packages.
	activeDKG string

	dkgWaiters  map[string]chan error
	signWaiters map[string]chan error

	// meshDeliver holds each registered peer's inbox-delivery callback
	// (transport.NewWebSocketPeer's second return value) keyed by device-id.
	// onMeshFrame feeds every inbound frame through it in addition to
	// dispatching the decoded Command, so wsPeer.Recv() stays a faithful
	// mirror of mesh traffic for anything that reads it.
	meshDeliver map[string]func(transport.Frame)

	// signatures holds the aggregated signature bytes for every signing
	// ceremony that has reached Complete, keyed by signing-id. The
	// signing.Engine drops its own Session record on completion (see
	// checkSigningCompletion), so this is the only place a CLI caller can
	// still retrieve the result after the fact via Snapshot.
	signatures map[string][]byte

	snapshots    snapshotStore
	knownDevices []string
}

// New constructs a Runner around an already-connected rendezvous Client.
// suites maps curve names ("secp256k1", "ed25519") to the Suite instance to
// use for sessions proposed on that curve.
func New(selfID string, client *rendezvous.Client, store *keystore.Store, suites map[string]ciphersuite.Suite, log *zap.Logger) *Runner {
	manager := transport.NewManager(log)
	r := &Runner{
		log:         log,
		selfID:      selfID,
		client:      client,
		registry:    session.New(log),
		dkgEng:      dkg.NewEngine(log),
		signEng:     signing.NewEngine(log),
		store:       store,
		manager:     manager,
		suites:      suites,
		dkgSend:     &dkgSender{manager: manager, log: log},
		cmdCh:       make(chan Command, 256),
		done:        make(chan struct{}),
		dkgWaiters:  make(map[string]chan error),
		signWaiters: make(map[string]chan error),
		meshDeliver: make(map[string]func(transport.Frame)),
		signatures:  make(map[string][]byte),
	}
	r.signSend = &signingSender{manager: manager, engine: r.signEng, log: log}
	return r
}

// Submit enqueues a Command for the runner's loop. Safe to call from any
// goroutine.
func (r *Runner) Submit(cmd Command) {
	select {
	case r.cmdCh <- cmd:
	case <-r.done:
	}
}

// Snapshot returns the most recently published aggregate-state projection.
func (r *Runner) Snapshot() Snapshot { return r.snapshots.get() }

// Run drives the rendezvous client's read loop (translating inbound frames
// into Commands) and the command loop itself, until the client connection
// closes. It blocks and should be run in its own goroutine.
func (r *Runner) Run() error {
	go func() {
		_ = r.client.Run(rendezvous.Callbacks{
			OnRelay:          r.onSignallingFrame,
			OnMeshFrame:      r.onMeshFrame,
			OnDevices:        func(devices []string) { r.Submit(Command{Kind: KindDevicesUpdated, Devices: devices}) },
			OnActiveSessions: r.onActiveSessions,
			OnError:          func(reason string) { r.log.Warn("rendezvous reported error", zap.String("reason", reason)) },
		})
		close(r.done)
	}()

	for {
		select {
		case cmd := <-r.cmdCh:
			r.dispatch(cmd)
		case <-r.done:
			return nil
		}
	}
}

func (r *Runner) onActiveSessions(sessions []wireproto.SessionAnnouncement) {
	for _, s := range sessions {
		r.Submit(Command{Kind: KindSessionAnnounce, Announcement: s})
	}
}

// onSignallingFrame adapts an inbound WebSocketMessage (session negotiation,
// pre-mesh) into a Command.
func (r *Runner) onSignallingFrame(from string, envelope *wireproto.WebSocketMessage) {
	switch envelope.Type {
	case wireproto.TypeSessionProposal:
		var p wireproto.SessionProposal
		if err := envelope.Decode(&p); err == nil {
			r.Submit(Command{Kind: KindSessionProposal, From: from, Proposal: p})
		}
	case wireproto.TypeSessionResponse:
		var resp wireproto.SessionResponse
		if err := envelope.Decode(&resp); err == nil {
			r.Submit(Command{Kind: KindSessionResponse, From: from, Response: resp})
		}
	case wireproto.TypeSessionUpdate:
		var u wireproto.SessionUpdate
		if err := envelope.Decode(&u); err == nil {
			r.Submit(Command{Kind: KindSessionUpdate, From: from, Update: u})
		}
	case wireproto.TypeSessionAnnouncement:
		var a wireproto.SessionAnnouncement
		if err := envelope.Decode(&a); err == nil {
			r.Submit(Command{Kind: KindSessionAnnounce, From: from, Announcement: a})
		}
	case wireproto.TypeWebRTCSignal:
		// Defined for wire compatibility but never produced or consumed:
		// this stack multiplexes mesh traffic over the already-open
		// rendezvous socket (see internal/transport's wsPeer) instead of
		// negotiating real WebRTC peer connections.
	}
}

// onMeshFrame adapts an inbound WebRTCMessage (post-mesh protocol traffic)
// into a Command.
func (r *Runner) onMeshFrame(from string, data []byte) {
	msg, err := wireproto.DecodeMeshFrame(data)
	if err != nil {
		r.log.Debug("dropping undecodable mesh frame", zap.String("from", from), zap.Error(err))
		return
	}

	if deliver, ok := r.meshDeliver[from]; ok {
		deliver(transport.Frame(data))
	}

	switch msg.Type {
	case wireproto.DataDkgRound1Package:
		var p wireproto.DkgRound1Package
		if err := msg.Decode(&p); err == nil {
			r.Submit(Command{Kind: KindDkgR1, From: from, PackageBytes: p.PackageBytes})
		}
	case wireproto.DataDkgRound2Package:
		var p wireproto.DkgRound2Package
		if err := msg.Decode(&p); err == nil {
			r.Submit(Command{Kind: KindDkgR2, From: from, PackageBytes: p.PackageBytes})
		}
	case wireproto.DataChannelOpen, wireproto.DataMeshReady:
		// Informational only: this transport's channels are open as soon as
		// they are registered (see ensureMeshPeers), so there is no separate
		// readiness wait to drive off these frames.
	case wireproto.DataSigningRequest:
		var p wireproto.SigningRequest
		if err := msg.Decode(&p); err == nil {
			r.Submit(Command{Kind: KindSigningRequest, From: from, SigningID: p.SigningID, TxBytes: p.TransactionData, Blockchain: p.Blockchain, ChainID: p.ChainID})
		}
	case wireproto.DataSigningAcceptance:
		var p wireproto.SigningAcceptance
		if err := msg.Decode(&p); err == nil {
			r.Submit(Command{Kind: KindSigningAcceptance, From: from, SigningID: p.SigningID, Accepted: p.Accepted})
		}
	case wireproto.DataSignerSelection:
		var p wireproto.SignerSelection
		if err := msg.Decode(&p); err == nil {
			r.Submit(Command{Kind: KindSignerSelection, From: from, SigningID: p.SigningID, SelectedSigners: p.SelectedSigners})
		}
	case wireproto.DataSigningCommitment:
		var p wireproto.SigningCommitment
		if err := msg.Decode(&p); err == nil {
			r.Submit(Command{Kind: KindSigningCommitment, From: from, SigningID: p.SigningID, SenderIdentifier: p.SenderIdentifier, CommitmentBytes: p.CommitmentBytes})
		}
	case wireproto.DataSignatureShare:
		var p wireproto.SignatureShare
		if err := msg.Decode(&p); err == nil {
			r.Submit(Command{Kind: KindSignatureShare, From: from, SigningID: p.SigningID, SenderIdentifier: p.SenderIdentifier, ShareBytes: p.ShareBytes})
		}
	case wireproto.DataAggregatedSig:
		var p wireproto.AggregatedSignature
		if err := msg.Decode(&p); err == nil {
			r.Submit(Command{Kind: KindAggregatedSig, From: from, SigningID: p.SigningID, SignatureBytes: p.SignatureBytes})
		}
	}
}

// dispatch is the loop body: exactly one Command is handled per call, under
// no lock (the loop itself is the only writer), and a fresh Snapshot is
// published before returning.
func (r *Runner) dispatch(cmd Command) {
	switch cmd.Kind {
	case KindProposeSession:
		r.handleProposeSession(cmd)
	case KindAcceptSession:
		r.handleAcceptSession(cmd)
	case KindSessionProposal:
		r.registry.OnProposal(cmd.Proposal)
	case KindSessionResponse:
		r.handleSessionResponse(cmd)
	case KindSessionUpdate:
		r.handleSessionUpdate(cmd)
	case KindSessionAnnounce:
		r.registry.OnAnnouncement(cmd.Announcement, time.Now())
	case KindDkgR1:
		r.handleDkgPackage(cmd, true)
	case KindDkgR2:
		r.handleDkgPackage(cmd, false)
	case KindInitiateSigning:
		r.handleInitiateSigning(cmd)
	case KindAcceptSigning:
		r.handleAcceptSigning(cmd)
	case KindSigningRequest:
		r.handleSigningRequest(cmd)
	case KindSigningAcceptance:
		r.handleSigningAcceptance(cmd)
	case KindSignerSelection:
		r.handleSignerSelection(cmd)
	case KindSigningCommitment:
		r.handleSigningCommitment(cmd)
	case KindSignatureShare:
		r.handleSignatureShare(cmd)
	case KindAggregatedSig:
		r.handleAggregatedSignature(cmd)
	case KindDevicesUpdated:
		r.knownDevices = cmd.Devices
	}
	r.publishSnapshot()
}

func finish(ch chan error, err error) {
	if ch == nil {
		return
	}
	ch <- err
	close(ch)
}

func (r *Runner) handleProposeSession(cmd Command) {
	cfg := session.ProposeConfig{
		WalletName:   cmd.ProposeWalletName,
		Total:        cmd.ProposeTotal,
		Threshold:    cmd.ProposeThreshold,
		Participants: cmd.ProposeParticipants,
		Kind:         session.KindDKG,
		Curve:        cmd.ProposeCurve,
		Coordination: cmd.ProposeCoordination,
		SelfDeviceID: r.selfID,
	}
	sess, err := r.registry.Propose(cfg, cmd.ProposeWalletType, r.client)
	if err != nil {
		finish(cmd.Done, err)
		return
	}
	if cmd.Done != nil {
		r.dkgWaiters[sess.ID] = cmd.Done
	}
	if len(sess.Accepted) >= sess.Total {
		r.armMeshAndStartDKG(sess)
	}
}

func (r *Runner) handleAcceptSession(cmd Command) {
	if err := r.registry.Accept(cmd.SessionID, r.selfID, r.client); err != nil {
		finish(cmd.Done, err)
		return
	}
	if cmd.Done != nil {
		r.dkgWaiters[cmd.SessionID] = cmd.Done
	}
}

func (r *Runner) handleSessionResponse(cmd Command) {
	ready, err := r.registry.OnResponse(cmd.Response, r.client)
	if err != nil {
		r.log.Warn("session response handling failed", zap.Error(err))
		return
	}
	if !ready {
		return
	}
	sess, err := r.registry.Get(cmd.Response.SessionID)
	if err != nil {
		return
	}
	r.armMeshAndStartDKG(sess)
}

func (r *Runner) handleSessionUpdate(cmd Command) {
	sess, err := r.registry.Get(cmd.Update.SessionID)
	if err != nil {
		return
	}
	if len(cmd.Update.AcceptedDevices) < sess.Total {
		return
	}
	r.armMeshAndStartDKG(sess)
}

// ensureMeshPeers registers a mesh channel for every roster member this
// device does not already have one for. The rendezvous-relayed transport
// has no separate connection-establishment step — a wsPeer is open the
// instant it is registered — so "mesh ready" for this stack reduces to
// "every peer is registered" (the usual connection-timeout path never
// actually fires on this transport).
func (r *Runner) ensureMeshPeers(devices []string) {
	for _, d := range devices {
		if d == r.selfID {
			continue
		}
		if _, ok := r.manager.Peer(d); ok {
			continue
		}
		peer, deliver := transport.NewWebSocketPeer(d, r.client.Relay)
		r.manager.AddPeer(d, peer)
		r.meshDeliver[d] = deliver
	}
}

func (r *Runner) armMeshAndStartDKG(sess *session.Session) {
	if r.activeDKG != "" {
		r.log.Warn("dropping dkg start: another ceremony already in flight", zap.String("session_id", sess.ID), zap.String("active", r.activeDKG))
		return
	}
	r.ensureMeshPeers(sess.Participants)

	suite, ok := r.suites[sess.Curve]
	if !ok {
		r.log.Warn("unknown curve for dkg session", zap.String("curve", sess.Curve))
		return
	}
	idMap := identifier.Build(sess.Participants)

	dkgSess, err := r.dkgEng.Start(sess.ID, suite, idMap, r.selfID, sess.Threshold, r.dkgSend)
	if err != nil {
		r.log.Warn("dkg start failed", zap.String("session_id", sess.ID), zap.Error(err))
		if w, ok := r.dkgWaiters[sess.ID]; ok {
			finish(w, err)
			delete(r.dkgWaiters, sess.ID)
		}
		return
	}
	r.activeDKG = sess.ID
	r.log.Info("dkg mesh armed", zap.String("session_id", dkgSess.SessionID), zap.Int("participants", idMap.Len()))
}

func (r *Runner) handleDkgPackage(cmd Command, round1 bool) {
	if r.activeDKG == "" {
		r.log.Debug("dropping dkg package: no ceremony in flight", zap.String("from", cmd.From))
		return
	}
	sess, err := r.dkgEng.Get(r.activeDKG)
	if err != nil {
		return
	}
	if round1 {
		err = sess.OnR1Package(cmd.From, cmd.PackageBytes, r.dkgSend)
	} else {
		err = sess.OnR2Package(cmd.From, cmd.PackageBytes)
	}
	if err != nil {
		r.log.Warn("dkg package handling failed", zap.Error(err))
	}
	r.checkDKGCompletion(sess)
}

func (r *Runner) checkDKGCompletion(sess *dkg.Session) {
	state, reason := sess.State()
	switch state {
	case dkg.Complete:
		idMap := sess.IDMap
		selfPos, _ := idMap.IdentifierFor(r.selfID)
		_, err := r.store.Create(sess.SessionID, sess.Suite, sess.KeyPackage, sess.PublicKeyPackage, sess.Threshold, sess.Total, int(selfPos))
		if err != nil {
			r.log.Warn("wallet persist after dkg failed", zap.String("session_id", sess.SessionID), zap.Error(err))
		}
		if w, ok := r.dkgWaiters[sess.SessionID]; ok {
			finish(w, err)
			delete(r.dkgWaiters, sess.SessionID)
		}
		r.dkgEng.Cleanup(sess.SessionID)
		r.activeDKG = ""
	case dkg.Failed:
		if w, ok := r.dkgWaiters[sess.SessionID]; ok {
			finish(w, errs.New(errs.DkgIntegrity, "runner.dkg."+reason))
			delete(r.dkgWaiters, sess.SessionID)
		}
		r.dkgEng.Cleanup(sess.SessionID)
		r.activeDKG = ""
	}
}

// signingID encodes the wallet-id a signing ceremony is for as a prefix,
// since SigningRequest carries no wallet-id field of its own — a
// receiving device needs some way to resolve which keystore entry and
// roster to use, and the signing-id is the only identifier present on
// every signing-protocol frame.
func newSigningID(walletID string) string {
	return walletID + ":" + uuid.New().String()
}

func walletIDFromSigningID(signingID string) string {
	idx := strings.IndexByte(signingID, ':')
	if idx < 0 {
		return signingID
	}
	return signingID[:idx]
}

func (r *Runner) handleInitiateSigning(cmd Command) {
	walletID := cmd.WalletID
	regSess, err := r.registry.Get(walletID)
	if err != nil {
		finish(cmd.Done, err)
		return
	}
	suite, ok := r.suites[regSess.Curve]
	if !ok {
		finish(cmd.Done, errs.New(errs.Config, "runner.handleInitiateSigning"))
		return
	}
	kp, pub, _, err := r.store.Load(walletID, suite)
	if err != nil {
		finish(cmd.Done, err)
		return
	}
	r.ensureMeshPeers(regSess.Participants)
	idMap := identifier.Build(regSess.Participants)
	signingID := newSigningID(walletID)

	sess, err := r.signEng.Initiate(signingID, suite, idMap, r.selfID, kp, pub, regSess.Threshold, cmd.TxBytes, cmd.Blockchain, cmd.ChainID, r.signSend)
	if err != nil {
		finish(cmd.Done, err)
		return
	}
	if cmd.Done != nil {
		r.signWaiters[sess.SigningID] = cmd.Done
	}
}

func (r *Runner) handleAcceptSigning(cmd Command) {
	sess, err := r.signEng.Get(cmd.SigningID)
	if err != nil {
		finish(cmd.Done, err)
		return
	}
	if err := sess.AcceptSigning(r.signSend); err != nil {
		finish(cmd.Done, err)
		return
	}
	if cmd.Done != nil {
		r.signWaiters[cmd.SigningID] = cmd.Done
	}
	r.checkSigningCompletion(sess)
}

func (r *Runner) handleSigningRequest(cmd Command) {
	walletID := walletIDFromSigningID(cmd.SigningID)
	regSess, err := r.registry.Get(walletID)
	if err != nil {
		r.log.Warn("signing request for unknown wallet", zap.String("wallet_id", walletID), zap.Error(err))
		return
	}
	suite, ok := r.suites[regSess.Curve]
	if !ok {
		return
	}
	kp, pub, _, err := r.store.Load(walletID, suite)
	if err != nil {
		r.log.Warn("signing request: keystore load failed", zap.Error(err))
		return
	}
	r.ensureMeshPeers(regSess.Participants)
	idMap := identifier.Build(regSess.Participants)

	if _, err := r.signEng.OnSigningRequest(cmd.SigningID, cmd.From, suite, idMap, r.selfID, kp, pub, regSess.Threshold, cmd.TxBytes, cmd.Blockchain, cmd.ChainID); err != nil {
		r.log.Warn("signing request registration failed", zap.Error(err))
	}
	// The ceremony now shows up as a pending signing request in the
	// snapshot; the operator (or CLI script) decides whether to accept via
	// KindAcceptSigning.
}

func (r *Runner) handleSigningAcceptance(cmd Command) {
	sess, err := r.signEng.Get(cmd.SigningID)
	if err != nil {
		return
	}
	if err := sess.OnSigningAcceptance(cmd.From, r.signSend); err != nil {
		r.log.Warn("signing acceptance handling failed", zap.Error(err))
	}
	r.checkSigningCompletion(sess)
}

func (r *Runner) handleSignerSelection(cmd Command) {
	sess, err := r.signEng.Get(cmd.SigningID)
	if err != nil {
		return
	}
	selectedDevices := make([]string, 0, len(cmd.SelectedSigners))
	for _, idBytes := range cmd.SelectedSigners {
		id, err := ciphersuite.IdentifierFromBytes(idBytes)
		if err != nil {
			continue
		}
		device, err := sess.IDMap.DeviceFor(id)
		if err != nil {
			continue
		}
		selectedDevices = append(selectedDevices, device)
	}
	if err := sess.OnSignerSelection(selectedDevices, r.signSend); err != nil {
		r.log.Warn("signer selection handling failed", zap.Error(err))
	}
	r.checkSigningCompletion(sess)
}

func (r *Runner) handleSigningCommitment(cmd Command) {
	sess, err := r.signEng.Get(cmd.SigningID)
	if err != nil {
		return
	}
	fromID, err := ciphersuite.IdentifierFromBytes(cmd.SenderIdentifier)
	if err != nil {
		return
	}
	fromDevice, err := sess.IDMap.DeviceFor(fromID)
	if err != nil {
		return
	}
	if err := sess.OnSigningCommitment(fromDevice, cmd.CommitmentBytes, r.signSend); err != nil {
		r.log.Warn("signing commitment handling failed", zap.Error(err))
	}
	r.checkSigningCompletion(sess)
}

func (r *Runner) handleSignatureShare(cmd Command) {
	sess, err := r.signEng.Get(cmd.SigningID)
	if err != nil {
		return
	}
	fromID, err := ciphersuite.IdentifierFromBytes(cmd.SenderIdentifier)
	if err != nil {
		return
	}
	fromDevice, err := sess.IDMap.DeviceFor(fromID)
	if err != nil {
		return
	}
	if err := sess.OnSignatureShare(fromDevice, cmd.ShareBytes, r.signSend); err != nil {
		r.log.Warn("signature share handling failed", zap.Error(err))
	}
	r.checkSigningCompletion(sess)
}

func (r *Runner) handleAggregatedSignature(cmd Command) {
	sess, err := r.signEng.Get(cmd.SigningID)
	if err != nil {
		return
	}
	if err := sess.OnAggregatedSignature(cmd.SignatureBytes); err != nil {
		r.log.Warn("aggregated signature handling failed", zap.Error(err))
	}
	r.checkSigningCompletion(sess)
}

func (r *Runner) checkSigningCompletion(sess *signing.Session) {
	state, reason := sess.State()
	if state != signing.Complete && state != signing.Failed {
		return
	}
	var err error
	if state == signing.Failed {
		err = errs.New(errs.DkgIntegrity, "runner.signing."+reason)
	} else if sigBytes, serErr := sess.Suite.SerializeSignature(sess.Signature); serErr == nil {
		r.signatures[sess.SigningID] = sigBytes
	}
	if w, ok := r.signWaiters[sess.SigningID]; ok {
		finish(w, err)
		delete(r.signWaiters, sess.SigningID)
	}
	r.signEng.Cleanup(sess.SigningID)
}

func (r *Runner) publishSnapshot() {
	snap := Snapshot{
		KnownDevices:   append([]string(nil), r.knownDevices...),
		DKGSessionID:   r.activeDKG,
		Addresses:      make(map[string]string),
		ActiveSignings: make(map[string]string),
		Signatures:     make(map[string]string, len(r.signatures)),
	}
	for id, sig := range r.signatures {
		snap.Signatures[id] = hex.EncodeToString(sig)
	}
	if r.activeDKG != "" {
		if sess, err := r.dkgEng.Get(r.activeDKG); err == nil {
			state, _ := sess.State()
			snap.DKGStatus = state.String()
			snap.MeshReady = r.manager.AllOpen()
		}
	}
	for _, w := range r.store.List() {
		for _, addr := range w.Blockchains {
			snap.Addresses[fmt.Sprintf("%s:%s", w.SessionID, addr.Blockchain)] = addr.Address
		}
	}
	for _, signingID := range r.signEng.SigningIDs() {
		sess, err := r.signEng.Get(signingID)
		if err != nil {
			continue
		}
		state, _ := sess.State()
		snap.ActiveSignings[signingID] = state.String()
		if state == signing.AwaitingAcceptance && sess.Initiator != r.selfID {
			snap.PendingSignings = append(snap.PendingSignings, signingID)
		}
	}
	r.snapshots.publish(snap)
}
