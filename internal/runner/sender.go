package runner

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/ciphersuite"
	"github.com/collider/frost-wallet-node/internal/errs"
	"github.com/collider/frost-wallet-node/internal/signing"
	"github.com/collider/frost-wallet-node/internal/transport"
	"github.com/collider/frost-wallet-node/internal/wireproto"
)

// meshFrame wire-encodes a WebRTCMessage payload for the shared transport
// Manager — the node's single multiplexed channel set substitutes for real
// WebRTC data channels (no webrtc library is part of this stack), so a
// "frame" here is just a WebRTCMessage JSON blob sent over a wsPeer.
func meshFrame(t wireproto.DataType, payload any) (transport.Frame, error) {
	msg, err := wireproto.EncodeData(t, payload)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "runner.meshFrame", err)
	}
	return transport.Frame(data), nil
}

// dkgSender implements dkg.Sender over the node's shared mesh Manager.
// Round packages carry no session-id on the wire (DkgRound1Package/
// DkgRound2Package are bare byte blobs) — demultiplexing an inbound package
// to the right ceremony is the runner's job, via its single in-flight DKG
// session (see Runner.activeDKG).
type dkgSender struct {
	manager *transport.Manager
	log     *zap.Logger
}

func (s *dkgSender) BroadcastR1(sessionID string, pkg []byte) error {
	f, err := meshFrame(wireproto.DataDkgRound1Package, wireproto.DkgRound1Package{PackageBytes: pkg})
	if err != nil {
		return err
	}
	s.manager.Broadcast(f)
	return nil
}

func (s *dkgSender) SendR2(sessionID, toDeviceID string, pkg []byte) error {
	f, err := meshFrame(wireproto.DataDkgRound2Package, wireproto.DkgRound2Package{PackageBytes: pkg})
	if err != nil {
		return err
	}
	peer, ok := s.manager.Peer(toDeviceID)
	if !ok {
		return errs.New(errs.PeerDisconnected, "runner.dkgSender.SendR2")
	}
	return peer.Send(f)
}

// signingSender implements signing.Sender over the same shared mesh
// Manager. Unlike DKG frames, every signing wire message names its
// signing-id explicitly, so sessions can run concurrently; the sender
// consults the live signing.Engine to resolve a device-id to the wire
// identifier-bytes form a SigningCommitment/SignatureShare frame carries.
type signingSender struct {
	manager *transport.Manager
	engine  *signing.Engine
	log     *zap.Logger
}

func (s *signingSender) send(to string, t wireproto.DataType, payload any) error {
	f, err := meshFrame(t, payload)
	if err != nil {
		return err
	}
	peer, ok := s.manager.Peer(to)
	if !ok {
		return errs.New(errs.PeerDisconnected, "runner.signingSender.send")
	}
	return peer.Send(f)
}

func (s *signingSender) broadcast(selected []string, self string, t wireproto.DataType, payload any) error {
	f, err := meshFrame(t, payload)
	if err != nil {
		return err
	}
	for _, d := range selected {
		if d == self {
			continue
		}
		peer, ok := s.manager.Peer(d)
		if !ok {
			s.log.Warn("signing broadcast target has no mesh peer", zap.String("device", d))
			continue
		}
		if err := peer.Send(f); err != nil {
			s.log.Warn("signing broadcast send failed", zap.String("device", d), zap.Error(err))
		}
	}
	return nil
}

func (s *signingSender) identifierBytes(signingID, deviceID string) ([]byte, error) {
	sess, err := s.engine.Get(signingID)
	if err != nil {
		return nil, err
	}
	id, err := sess.IDMap.IdentifierFor(deviceID)
	if err != nil {
		return nil, err
	}
	return ciphersuite.IdentifierBytes(id), nil
}

func (s *signingSender) SendSigningRequest(to, signingID string, txBytes []byte, blockchain string, chainID *int64) error {
	return s.send(to, wireproto.DataSigningRequest, wireproto.SigningRequest{
		SigningID:       signingID,
		TransactionData: txBytes,
		Blockchain:      blockchain,
		ChainID:         chainID,
	})
}

func (s *signingSender) SendAcceptance(to, signingID string) error {
	return s.send(to, wireproto.DataSigningAcceptance, wireproto.SigningAcceptance{SigningID: signingID, Accepted: true})
}

func (s *signingSender) SendSignerSelection(to string, signingID string, selected []ciphersuite.Identifier) error {
	selectedBytes := make([][]byte, len(selected))
	for i, id := range selected {
		selectedBytes[i] = ciphersuite.IdentifierBytes(id)
	}
	return s.send(to, wireproto.DataSignerSelection, wireproto.SignerSelection{SigningID: signingID, SelectedSigners: selectedBytes})
}

func (s *signingSender) BroadcastCommitment(signingID string, selected []string, selfDeviceID string, commitment []byte) error {
	senderID, err := s.identifierBytes(signingID, selfDeviceID)
	if err != nil {
		return err
	}
	return s.broadcast(selected, selfDeviceID, wireproto.DataSigningCommitment, wireproto.SigningCommitment{
		SigningID:        signingID,
		SenderIdentifier: senderID,
		CommitmentBytes:  commitment,
	})
}

func (s *signingSender) BroadcastShare(signingID string, selected []string, selfDeviceID string, share []byte) error {
	senderID, err := s.identifierBytes(signingID, selfDeviceID)
	if err != nil {
		return err
	}
	return s.broadcast(selected, selfDeviceID, wireproto.DataSignatureShare, wireproto.SignatureShare{
		SigningID:        signingID,
		SenderIdentifier: senderID,
		ShareBytes:       share,
	})
}

func (s *signingSender) BroadcastAggregatedSignature(signingID string, participants []string, selfDeviceID string, signature []byte) error {
	return s.broadcast(participants, selfDeviceID, wireproto.DataAggregatedSig, wireproto.AggregatedSignature{
		SigningID:      signingID,
		SignatureBytes: signature,
	})
}
