package session

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/wireproto"
)

type fakeAnnouncer struct {
	proposals     []string
	announcements []wireproto.SessionAnnouncement
	responses     []string
	updates       []string
}

func (f *fakeAnnouncer) SendProposal(to string, p wireproto.SessionProposal) error {
	f.proposals = append(f.proposals, to)
	return nil
}
func (f *fakeAnnouncer) BroadcastAnnouncement(a wireproto.SessionAnnouncement) error {
	f.announcements = append(f.announcements, a)
	return nil
}
func (f *fakeAnnouncer) SendResponse(to string, r wireproto.SessionResponse) error {
	f.responses = append(f.responses, to)
	return nil
}
func (f *fakeAnnouncer) BroadcastUpdate(except string, u wireproto.SessionUpdate) error {
	f.updates = append(f.updates, except)
	return nil
}

func TestDeriveSessionIDDeterministic(t *testing.T) {
	a := DeriveSessionID("my-wallet")
	b := DeriveSessionID("my-wallet")
	require.Equal(t, a, b)
	require.Len(t, a, 16)
	require.NotEqual(t, a, DeriveSessionID("other-wallet"))
}

func TestProposeRejectsBadThreshold(t *testing.T) {
	r := New(zap.NewNop())
	_, err := r.Propose(ProposeConfig{WalletName: "w", Total: 1, Threshold: 1, SelfDeviceID: "d1"}, "dkg", nil)
	require.Error(t, err)

	_, err = r.Propose(ProposeConfig{WalletName: "w", Total: 3, Threshold: 5, SelfDeviceID: "d1"}, "dkg", nil)
	require.Error(t, err)
}

func TestProposeDuplicateKeepsFirst(t *testing.T) {
	r := New(zap.NewNop())
	ann := &fakeAnnouncer{}
	cfg := ProposeConfig{WalletName: "w", Total: 2, Threshold: 2, Participants: []string{"d1", "d2"}, SelfDeviceID: "d1"}
	s1, err := r.Propose(cfg, "dkg", ann)
	require.NoError(t, err)
	s2, err := r.Propose(cfg, "dkg", ann)
	require.NoError(t, err)
	require.Same(t, s1, s2)
}

func TestAcceptAndOnResponseReachesMeshReady(t *testing.T) {
	r := New(zap.NewNop())
	ann := &fakeAnnouncer{}
	sess, err := r.Propose(ProposeConfig{
		WalletName:   "wallet-x",
		Total:        2,
		Threshold:    2,
		Participants: []string{"d1", "d2"},
		SelfDeviceID: "d1",
	}, "dkg", ann)
	require.NoError(t, err)

	ready, err := r.OnResponse(wireproto.SessionResponse{SessionID: sess.ID, FromDeviceID: "d2", Accepted: true}, ann)
	require.NoError(t, err)
	require.True(t, ready)
	require.Contains(t, ann.updates, "d2")
}

func TestAcceptIsIdempotentForRejoin(t *testing.T) {
	r := New(zap.NewNop())
	ann := &fakeAnnouncer{}
	sess, err := r.Propose(ProposeConfig{
		WalletName:   "wallet-y",
		Total:        2,
		Threshold:    2,
		Participants: []string{"d1", "d2"},
		SelfDeviceID: "d1",
	}, "dkg", ann)
	require.NoError(t, err)

	require.NoError(t, r.Accept(sess.ID, "d2", ann))
	require.NoError(t, r.Accept(sess.ID, "d2", ann)) // rejoin: must not error
	require.Len(t, ann.responses, 2)
}

func TestOnProposalLetsNonProposerAccept(t *testing.T) {
	r := New(zap.NewNop())
	ann := &fakeAnnouncer{}

	sess := r.OnProposal(wireproto.SessionProposal{
		SessionID:        "abc123",
		Total:            2,
		Threshold:        2,
		Participants:     []string{"d1", "d2"},
		SessionType:      "dkg",
		ProposerDeviceID: "d1",
		CurveType:        "secp256k1",
	})
	require.Equal(t, "abc123", sess.ID)

	require.NoError(t, r.Accept("abc123", "d2", ann))
	require.Contains(t, ann.responses, "d1")
}

func TestOnProposalDuplicateKeepsFirst(t *testing.T) {
	r := New(zap.NewNop())
	first := r.OnProposal(wireproto.SessionProposal{SessionID: "dup", Total: 2, Threshold: 2, ProposerDeviceID: "d1"})
	second := r.OnProposal(wireproto.SessionProposal{SessionID: "dup", Total: 3, Threshold: 3, ProposerDeviceID: "d9"})
	require.Same(t, first, second)
	require.Equal(t, 2, second.Total)
}

func TestDiscoveryTTLExpiry(t *testing.T) {
	r := New(zap.NewNop())
	now := time.Unix(1000, 0)
	r.OnAnnouncement(wireproto.SessionAnnouncement{SessionCode: "code1"}, now)

	found := r.Discover(now.Add(1 * time.Second))
	require.Len(t, found, 1)

	expired := r.Discover(now.Add(discoveryTTL + time.Second))
	require.Empty(t, expired)
}

func TestDiscoveryLRUEviction(t *testing.T) {
	r := New(zap.NewNop())
	now := time.Unix(1000, 0)
	for i := 0; i < discoveryCapacity+10; i++ {
		r.OnAnnouncement(wireproto.SessionAnnouncement{SessionCode: "code-" + strconv.Itoa(i)}, now)
	}
	found := r.Discover(now)
	require.LessOrEqual(t, len(found), discoveryCapacity)
}
