// Package wireproto defines the JSON wire envelopes exchanged between
// devices (over WebRTC data channels and the rendezvous WebSocket) and
// between a device and the rendezvous server itself.
package wireproto

import (
	"encoding/json"

	"github.com/collider/frost-wallet-node/internal/errs"
)

// Type tags the payload carried by a WebSocketMessage envelope.
type Type string

const (
	TypeWebRTCSignal        Type = "webrtc_signal"
	TypeSessionProposal     Type = "session_proposal"
	TypeSessionResponse     Type = "session_response"
	TypeSessionUpdate       Type = "session_update"
	TypeSessionAnnouncement Type = "session_announcement"
)

// WebSocketMessage is the tagged-enum envelope for every rendezvous-relayed
// signalling message. Body holds the JSON encoding of the payload struct
// selected by Type.
type WebSocketMessage struct {
	Type Type            `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Encode marshals a typed payload into a WebSocketMessage envelope.
func Encode(t Type, payload any) (*WebSocketMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "wireproto.Encode", err)
	}
	return &WebSocketMessage{Type: t, Body: body}, nil
}

// Decode unmarshals the envelope body into dst, which must be a pointer to
// the struct matching msg.Type.
func (m *WebSocketMessage) Decode(dst any) error {
	if err := json.Unmarshal(m.Body, dst); err != nil {
		return errs.Wrap(errs.CryptoDecode, "wireproto.WebSocketMessage.Decode", err)
	}
	return nil
}

// WebRTCSignal carries SDP offer/answer/candidate exchange for establishing
// a peer data channel.
type WebRTCSignal struct {
	Kind          SignalKind `json:"kind"`
	SDP           string     `json:"sdp,omitempty"`
	Candidate     string     `json:"candidate,omitempty"`
	SDPMid        *string    `json:"sdp_mid,omitempty"`
	SDPMLineIndex *int       `json:"sdp_mline_index,omitempty"`
}

// SignalKind distinguishes the three WebRTCSignal variants.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

// SessionProposal announces a new DKG or signing session to the roster.
type SessionProposal struct {
	SessionID        string   `json:"session_id"`
	Total            int      `json:"total"`
	Threshold        int      `json:"threshold"`
	Participants     []string `json:"participants"`
	SessionType      string   `json:"session_type"` // "dkg" | "signing"
	ProposerDeviceID string   `json:"proposer_device_id"`
	CurveType        string   `json:"curve_type"`
	CoordinationType string   `json:"coordination_type"` // "online" | "offline" | "hybrid"
}

// SessionResponse is a participant's accept/reject of a SessionProposal.
type SessionResponse struct {
	SessionID    string `json:"session_id"`
	FromDeviceID string `json:"from_device_id"`
	Accepted     bool   `json:"accepted"`
	Reason       string `json:"reason,omitempty"`
}

// SessionUpdate broadcasts roster progress (who has accepted so far).
type SessionUpdate struct {
	SessionID      string   `json:"session_id"`
	AcceptedDevices []string `json:"accepted_devices"`
	UpdateType     string   `json:"update_type"`
	Timestamp      int64    `json:"timestamp"`
}

// SessionAnnouncement is published to the discovery table so devices that
// were not direct recipients of a SessionProposal can still find and join.
type SessionAnnouncement struct {
	SessionCode        string `json:"session_code"`
	WalletType         string `json:"wallet_type"`
	Threshold          int    `json:"threshold"`
	Total              int    `json:"total"`
	CurveType          string `json:"curve_type"`
	CreatorDevice      string `json:"creator_device"`
	ParticipantsJoined int    `json:"participants_joined"`
	Description        string `json:"description,omitempty"`
	Timestamp          int64  `json:"timestamp"`
}

// DataType tags the payload carried by a WebRTCMessage envelope — the
// channel-level protocol exchanged once a data channel is open.
type DataType string

const (
	DataDkgRound1Package  DataType = "dkg_round1_package"
	DataDkgRound2Package  DataType = "dkg_round2_package"
	DataChannelOpen       DataType = "channel_open"
	DataMeshReady         DataType = "mesh_ready"
	DataSigningRequest    DataType = "signing_request"
	DataSigningAcceptance DataType = "signing_acceptance"
	DataSignerSelection   DataType = "signer_selection"
	DataSigningCommitment DataType = "signing_commitment"
	DataSignatureShare    DataType = "signature_share"
	DataAggregatedSig     DataType = "aggregated_signature"
)

// WebRTCMessage is the tagged-enum envelope used over established data
// channels for DKG and signing protocol traffic.
type WebRTCMessage struct {
	Type DataType        `json:"type"`
	Body json.RawMessage `json:"body"`
}

// EncodeData marshals a typed data-channel payload into a WebRTCMessage.
func EncodeData(t DataType, payload any) (*WebRTCMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "wireproto.EncodeData", err)
	}
	return &WebRTCMessage{Type: t, Body: body}, nil
}

// Decode unmarshals the envelope body into dst.
func (m *WebRTCMessage) Decode(dst any) error {
	if err := json.Unmarshal(m.Body, dst); err != nil {
		return errs.Wrap(errs.CryptoDecode, "wireproto.WebRTCMessage.Decode", err)
	}
	return nil
}

// DecodeMeshFrame unmarshals a raw mesh-transport frame into its
// WebRTCMessage envelope.
func DecodeMeshFrame(data []byte) (*WebRTCMessage, error) {
	var msg WebRTCMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errs.Wrap(errs.CryptoDecode, "wireproto.DecodeMeshFrame", err)
	}
	return &msg, nil
}

// DkgRound1Package carries one participant's serialized Round-1 broadcast.
type DkgRound1Package struct {
	PackageBytes []byte `json:"package_bytes"`
}

// DkgRound2Package carries one participant's serialized per-recipient
// Round-2 private share.
type DkgRound2Package struct {
	PackageBytes []byte `json:"package_bytes"`
}

// ChannelOpen announces that the sender's data channel to the recipient is
// now usable.
type ChannelOpen struct {
	DeviceID string `json:"device_id"`
}

// MeshReady announces that the sender has an open channel to every other
// accepted participant in the session.
type MeshReady struct {
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
}

// SigningRequest asks the roster to sign a transaction.
type SigningRequest struct {
	SigningID       string `json:"signing_id"`
	TransactionData []byte `json:"transaction_data"`
	RequiredSigners int    `json:"required_signers"`
	Blockchain      string `json:"blockchain"`
	ChainID         *int64 `json:"chain_id,omitempty"`
}

// SigningAcceptance is a participant's accept/reject of a SigningRequest.
type SigningAcceptance struct {
	SigningID string `json:"signing_id"`
	Accepted  bool   `json:"accepted"`
}

// SignerSelection announces the first-T-accepted signer set chosen by the
// proposer.
type SignerSelection struct {
	SigningID        string   `json:"signing_id"`
	SelectedSigners [][]byte `json:"selected_signers"` // identifier-bytes, see ciphersuite.IdentifierBytes
}

// SigningCommitment carries one signer's round-1 signing commitment.
type SigningCommitment struct {
	SigningID        string `json:"signing_id"`
	SenderIdentifier []byte `json:"sender_identifier"`
	CommitmentBytes  []byte `json:"commitment_bytes"`
}

// SignatureShare carries one signer's round-2 signature share.
type SignatureShare struct {
	SigningID        string `json:"signing_id"`
	SenderIdentifier []byte `json:"sender_identifier"`
	ShareBytes       []byte `json:"share_bytes"`
}

// AggregatedSignature is the final signature broadcast to the roster after
// local verification succeeds.
type AggregatedSignature struct {
	SigningID      string `json:"signing_id"`
	SignatureBytes []byte `json:"signature_bytes"`
}
