package signing

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/ciphersuite"
	"github.com/collider/frost-wallet-node/internal/dkg"
	"github.com/collider/frost-wallet-node/internal/identifier"
)

// queuedMsg mirrors the dkg package's test-harness shape: outbound sends are
// queued rather than delivered synchronously, so this single-process test
// never re-enters a session's own mutex the way distinct devices naturally
// would across a real network.
type queuedMsg struct {
	kind     string // "request" | "accept" | "selection" | "commitment" | "share" | "aggregated"
	to       string
	from     string
	selected []string
	payload  []byte
}

type queueSender struct {
	self  string
	queue *[]queuedMsg
}

func (q *queueSender) SendSigningRequest(to, signingID string, txBytes []byte, blockchain string, chainID *int64) error {
	*q.queue = append(*q.queue, queuedMsg{kind: "request", to: to, from: q.self})
	return nil
}

func (q *queueSender) SendAcceptance(to, signingID string) error {
	*q.queue = append(*q.queue, queuedMsg{kind: "accept", to: to, from: q.self})
	return nil
}

func (q *queueSender) SendSignerSelection(to, signingID string, selected []ciphersuite.Identifier) error {
	*q.queue = append(*q.queue, queuedMsg{kind: "selection", to: to, from: q.self})
	return nil
}

func (q *queueSender) BroadcastCommitment(signingID string, selected []string, selfDeviceID string, commitment []byte) error {
	*q.queue = append(*q.queue, queuedMsg{kind: "commitment", from: q.self, selected: selected, payload: commitment})
	return nil
}

func (q *queueSender) BroadcastShare(signingID string, selected []string, selfDeviceID string, share []byte) error {
	*q.queue = append(*q.queue, queuedMsg{kind: "share", from: q.self, selected: selected, payload: share})
	return nil
}

func (q *queueSender) BroadcastAggregatedSignature(signingID string, participants []string, selfDeviceID string, signature []byte) error {
	*q.queue = append(*q.queue, queuedMsg{kind: "aggregated", from: q.self, selected: participants, payload: signature})
	return nil
}

// runCeremony drives a full FROST DKG followed by a full FROST signing
// ceremony across three in-process simulated devices, returning the
// signing sessions keyed by device-id and the selected signers once the
// message queue drains. The device left out of the selection stays in
// AwaitingAcceptance.
func runCeremony(t *testing.T, threshold int) (map[string]*Session, []string) {
	t.Helper()
	devices := []string{"dev-a", "dev-b", "dev-c"}
	idMap := identifier.Build(devices)
	const dkgSessionID = "keygen-1"

	dkgEngines := make(map[string]*dkg.Engine, len(devices))
	for _, d := range devices {
		dkgEngines[d] = dkg.NewEngine(zap.NewNop())
	}
	for _, d := range devices {
		suite := ciphersuite.NewEd25519Suite()
		_, err := dkgEngines[d].Create(dkgSessionID, suite, idMap, d, threshold)
		require.NoError(t, err)
	}

	var dkgQueue []dkgQueuedMsg
	for _, d := range devices {
		sess, err := dkgEngines[d].Get(dkgSessionID)
		require.NoError(t, err)
		sender := &dkgQueueSender{self: d, queue: &dkgQueue}
		require.NoError(t, sess.TriggerRound1(sender))
	}
	drainDKG(t, &dkgQueue, devices, dkgEngines)

	keyPackages := make(map[string]*ciphersuite.KeyPackage, len(devices))
	pubPackages := make(map[string]*ciphersuite.PublicKeyPackage, len(devices))
	for _, d := range devices {
		sess, err := dkgEngines[d].Get(dkgSessionID)
		require.NoError(t, err)
		state, reason := sess.State()
		require.Equal(t, dkg.Complete, state, "device %s failed dkg: %s", d, reason)
		keyPackages[d] = sess.KeyPackage
		pubPackages[d] = sess.PublicKeyPackage
	}

	const signingID = "sign-1"
	engines := make(map[string]*Engine, len(devices))
	for _, d := range devices {
		engines[d] = NewEngine(zap.NewNop())
	}

	var queue []queuedMsg
	suite := ciphersuite.NewEd25519Suite()
	initiator := "dev-a"
	initSess, err := engines[initiator].Initiate(signingID, suite, idMap, initiator, keyPackages[initiator], pubPackages[initiator], threshold, []byte("deadbeef"), "ethereum", nil, &queueSender{self: initiator, queue: &queue})
	require.NoError(t, err)

	for len(queue) > 0 {
		msg := queue[0]
		queue = queue[1:]

		switch msg.kind {
		case "request":
			_, err := engines[msg.to].OnSigningRequest(signingID, msg.from, suite, idMap, msg.to, keyPackages[msg.to], pubPackages[msg.to], threshold, []byte("deadbeef"), "ethereum", nil)
			require.NoError(t, err)
			sess, err := engines[msg.to].Get(signingID)
			require.NoError(t, err)
			require.NoError(t, sess.AcceptSigning(&queueSender{self: msg.to, queue: &queue}))
		case "accept":
			require.NoError(t, initSess.OnSigningAcceptance(msg.from, &queueSender{self: initiator, queue: &queue}))
		case "selection":
			sess, err := engines[msg.to].Get(signingID)
			require.NoError(t, err)
			require.NoError(t, sess.OnSignerSelection(initSess.selected, &queueSender{self: msg.to, queue: &queue}))
		case "commitment":
			for _, d := range msg.selected {
				if d == msg.from {
					continue
				}
				sess, err := engines[d].Get(signingID)
				require.NoError(t, err)
				require.NoError(t, sess.OnSigningCommitment(msg.from, msg.payload, &queueSender{self: d, queue: &queue}))
			}
		case "share":
			for _, d := range msg.selected {
				if d == msg.from {
					continue
				}
				sess, err := engines[d].Get(signingID)
				require.NoError(t, err)
				require.NoError(t, sess.OnSignatureShare(msg.from, msg.payload, &queueSender{self: d, queue: &queue}))
			}
		case "aggregated":
			for _, d := range msg.selected {
				if d == msg.from {
					continue
				}
				sess, err := engines[d].Get(signingID)
				require.NoError(t, err)
				require.NoError(t, sess.OnAggregatedSignature(msg.payload))
			}
		}
	}

	results := make(map[string]*Session, len(devices))
	for _, d := range devices {
		if sess, err := engines[d].Get(signingID); err == nil {
			results[d] = sess
		}
	}
	return results, initSess.selected
}

func TestSigningEngineFullCeremonyProducesMatchingSignature(t *testing.T) {
	sessions, selected := runCeremony(t, 2)
	require.Len(t, selected, 2)

	suite := ciphersuite.NewEd25519Suite()
	var sigs [][]byte
	for _, d := range selected {
		sess, ok := sessions[d]
		require.True(t, ok, "selected signer %s must have a session", d)
		state, reason := sess.State()
		require.Equal(t, Complete, state, "device %s failed signing: %s", d, reason)
		require.NotNil(t, sess.Signature)
		raw, err := suite.SerializeSignature(sess.Signature)
		require.NoError(t, err)
		sigs = append(sigs, raw)
	}
	for i := 1; i < len(sigs); i++ {
		require.Equal(t, sigs[0], sigs[i])
	}
}

func TestAcceptSigningIsIdempotent(t *testing.T) {
	devices := []string{"dev-a", "dev-b"}
	idMap := identifier.Build(devices)
	suite := ciphersuite.NewEd25519Suite()

	eng := NewEngine(zap.NewNop())
	sess, err := eng.OnSigningRequest("sign-x", "dev-a", suite, idMap, "dev-b", nil, nil, 2, []byte("msg"), "ethereum", nil)
	require.NoError(t, err)

	var queue []queuedMsg
	sender := &queueSender{self: "dev-b", queue: &queue}
	require.NoError(t, sess.AcceptSigning(sender))
	require.NoError(t, sess.AcceptSigning(sender)) // idempotent, no duplicate send
	require.Len(t, queue, 1)
}

// --- local copies of the dkg package's queue-test helpers, so this test
// file does not depend on dkg's unexported test types. ---

type dkgQueuedMsg struct {
	kind    string
	to      string
	from    string
	session string
	payload []byte
}

type dkgQueueSender struct {
	self  string
	queue *[]dkgQueuedMsg
}

func (q *dkgQueueSender) BroadcastR1(sessionID string, pkg []byte) error {
	*q.queue = append(*q.queue, dkgQueuedMsg{kind: "r1", from: q.self, session: sessionID, payload: pkg})
	return nil
}

func (q *dkgQueueSender) SendR2(sessionID, toDeviceID string, pkg []byte) error {
	*q.queue = append(*q.queue, dkgQueuedMsg{kind: "r2", to: toDeviceID, from: q.self, session: sessionID, payload: pkg})
	return nil
}

func drainDKG(t *testing.T, queue *[]dkgQueuedMsg, devices []string, engines map[string]*dkg.Engine) {
	t.Helper()
	for len(*queue) > 0 {
		msg := (*queue)[0]
		*queue = (*queue)[1:]

		targets := devices
		if msg.kind == "r2" {
			targets = []string{msg.to}
		}
		for _, d := range targets {
			if d == msg.from {
				continue
			}
			sess, err := engines[d].Get(msg.session)
			require.NoError(t, err)
			sender := &dkgQueueSender{self: d, queue: queue}
			switch msg.kind {
			case "r1":
				require.NoError(t, sess.OnR1Package(msg.from, msg.payload, sender))
			case "r2":
				require.NoError(t, sess.OnR2Package(msg.from, msg.payload))
			}
		}
	}
}
