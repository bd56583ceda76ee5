// Package runner implements the event bus and command loop: the single
// command-loop goroutine that owns every piece of mutable ceremony state
// (session registry, DKG/signing engines, per-peer mesh transport) and is
// the sole writer to all of it.
package runner

import (
	"github.com/collider/frost-wallet-node/internal/session"
	"github.com/collider/frost-wallet-node/internal/wireproto"
)

// Kind tags a Command's variant. The runner's command loop is a single
// select over one channel of these tagged values — external triggers (CLI
// calls) and inbound rendezvous frames all flow through the same stream so
// state mutation never happens outside the loop. Round-complete
// continuations (DKG round 2 and finalize, signing phase changes) run inline
// inside the engine call that completes the round, not as separate Commands.
type Kind string

const (
	KindProposeSession    Kind = "propose_session"
	KindAcceptSession     Kind = "accept_session"
	KindSessionProposal   Kind = "session_proposal"   // inbound
	KindSessionResponse   Kind = "session_response"   // inbound
	KindSessionUpdate     Kind = "session_update"      // inbound
	KindSessionAnnounce   Kind = "session_announce"    // inbound
	KindRequestDiscovery  Kind = "request_discovery"
	KindChannelOpen       Kind = "channel_open"        // mesh peer link usable
	KindMeshReady         Kind = "mesh_ready"          // inbound peer's own mesh-ready
	KindDkgR1             Kind = "dkg_r1"              // inbound
	KindDkgR2             Kind = "dkg_r2"              // inbound
	KindInitiateSigning   Kind = "initiate_signing"
	KindAcceptSigning     Kind = "accept_signing"
	KindSigningRequest    Kind = "signing_request"     // inbound
	KindSigningAcceptance Kind = "signing_acceptance"  // inbound
	KindSignerSelection   Kind = "signer_selection"    // inbound
	KindSigningCommitment Kind = "signing_commitment"  // inbound
	KindSignatureShare    Kind = "signature_share"     // inbound
	KindAggregatedSig     Kind = "aggregated_signature" // inbound
	KindDevicesUpdated    Kind = "devices_updated"     // inbound, from rendezvous
)

// Command is the tagged variant every external or internal trigger is
// normalized into before entering the loop. Only the fields relevant to Kind
// are populated; unused fields stay zero.
type Command struct {
	Kind Kind
	From string // originating device-id, for inbound commands

	Devices []string // KindDevicesUpdated: the rendezvous server's current registration list

	ProposeWalletName   string
	ProposeWalletType   string
	ProposeTotal        int
	ProposeThreshold    int
	ProposeParticipants []string
	ProposeCurve        string
	ProposeCoordination session.Coordination

	SessionID string
	WalletID  string // KindInitiateSigning: which wallet to sign with

	Proposal     wireproto.SessionProposal
	Response     wireproto.SessionResponse
	Update       wireproto.SessionUpdate
	Announcement wireproto.SessionAnnouncement

	PackageBytes []byte // dkg r1/r2 payload

	SigningID        string
	TxBytes          []byte
	Blockchain       string
	ChainID          *int64
	Accepted         bool
	SelectedSigners  [][]byte // identifier-bytes
	SenderIdentifier []byte
	CommitmentBytes  []byte
	ShareBytes       []byte
	SignatureBytes   []byte

	// Done, when non-nil, is closed-by-send exactly once after the command
	// (and, for ceremony-starting commands, the ceremony it starts) reaches
	// a terminal state — the mechanism a blocking CLI call waits on.
	Done chan error
}
