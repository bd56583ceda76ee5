package dkg

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/ciphersuite"
	"github.com/collider/frost-wallet-node/internal/identifier"
)

// queuedMsg is one pending delivery the test driver loop will apply to the
// target device's session. Messages are queued rather than applied
// recursively inline (the way a real, single-process-per-device deployment
// naturally decouples send from receive across the network) so this
// single-process test never re-enters a session's own mutex.
type queuedMsg struct {
	kind    string // "r1" | "r2"
	to      string
	from    string
	session string
	payload []byte
}

// queueSender collects outbound sends into a shared queue instead of
// delivering them synchronously.
type queueSender struct {
	self  string
	queue *[]queuedMsg
}

func (q *queueSender) BroadcastR1(sessionID string, pkg []byte) error {
	*q.queue = append(*q.queue, queuedMsg{kind: "r1", from: q.self, session: sessionID, payload: pkg})
	return nil
}

func (q *queueSender) SendR2(sessionID, toDeviceID string, pkg []byte) error {
	*q.queue = append(*q.queue, queuedMsg{kind: "r2", to: toDeviceID, from: q.self, session: sessionID, payload: pkg})
	return nil
}

// drain applies every queued message to its target engine(s), re-queuing
// any further sends those deliveries produce, until the queue is empty.
func drain(t *testing.T, queue *[]queuedMsg, devices []string, engines map[string]*Engine) {
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
			sender := &queueSender{self: d, queue: queue}
			switch msg.kind {
			case "r1":
				require.NoError(t, sess.OnR1Package(msg.from, msg.payload, sender))
			case "r2":
				require.NoError(t, sess.OnR2Package(msg.from, msg.payload))
			}
		}
	}
}

func TestDKGEngineFullCeremony(t *testing.T) {
	devices := []string{"dev-a", "dev-b", "dev-c"}
	idMap := identifier.Build(devices)
	const threshold = 2
	const sessionID = "test-session-1"

	engines := make(map[string]*Engine, len(devices))
	for _, d := range devices {
		engines[d] = NewEngine(zap.NewNop())
	}

	// Create every device's session (Idle) before any of them trigger round
	// 1, so OnR1Package always has a session to buffer into regardless of
	// trigger order — mirroring real deployment, where every accepted
	// participant's session exists as soon as mesh-ready fires.
	for _, d := range devices {
		suite := ciphersuite.NewEd25519Suite()
		_, err := engines[d].Create(sessionID, suite, idMap, d, threshold)
		require.NoError(t, err)
	}

	var queue []queuedMsg
	for _, d := range devices {
		sess, err := engines[d].Get(sessionID)
		require.NoError(t, err)
		sender := &queueSender{self: d, queue: &queue}
		require.NoError(t, sess.TriggerRound1(sender))
	}
	drain(t, &queue, devices, engines)

	var groupKeys [][]byte
	for _, d := range devices {
		sess, err := engines[d].Get(sessionID)
		require.NoError(t, err)
		state, reason := sess.State()
		require.Equal(t, Complete, state, "device %s failed: %s", d, reason)
		require.NotNil(t, sess.KeyPackage)
		require.NotNil(t, sess.PublicKeyPackage)
		groupKeys = append(groupKeys, sess.PublicKeyPackage.GroupKey.Bytes())
	}

	for i := 1; i < len(groupKeys); i++ {
		require.Equal(t, groupKeys[0], groupKeys[i], "all participants must derive the same group key")
	}
}

func TestDKGEngineDuplicateCreateRejected(t *testing.T) {
	devices := []string{"dev-a", "dev-b"}
	idMap := identifier.Build(devices)
	eng := NewEngine(zap.NewNop())

	suite := ciphersuite.NewEd25519Suite()
	_, err := eng.Create("dup-session", suite, idMap, "dev-a", 2)
	require.NoError(t, err)

	_, err = eng.Create("dup-session", suite, idMap, "dev-a", 2)
	require.Error(t, err)
}
