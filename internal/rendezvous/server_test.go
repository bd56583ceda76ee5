package rendezvous

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/collider/frost-wallet-node/internal/wireproto"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	srv := NewServer(zap.NewNop())
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	return "ws" + strings.TrimPrefix(httpSrv.URL, "http")
}

func TestRegisterThenBroadcastRelay(t *testing.T) {
	url := startTestServer(t)

	a, err := Connect(url, "dev-a", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	b, err := Connect(url, "dev-b", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	received := make(chan string, 1)
	go b.Run(Callbacks{
		OnRelay: func(from string, env *wireproto.WebSocketMessage) {
			received <- from
		},
	})

	time.Sleep(50 * time.Millisecond) // let both registrations land server-side

	require.NoError(t, a.BroadcastAnnouncement(wireproto.SessionAnnouncement{SessionCode: "abc"}))

	select {
	case from := <-received:
		require.Equal(t, "dev-a", from)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relayed announcement")
	}
}

func TestRelayToUnknownDeviceReturnsError(t *testing.T) {
	url := startTestServer(t)

	a, err := Connect(url, "dev-a", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	errCh := make(chan string, 1)
	go a.Run(Callbacks{OnError: func(reason string) { errCh <- reason }})

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, a.SendResponse("dev-ghost", wireproto.SessionResponse{SessionID: "s1", FromDeviceID: "dev-a", Accepted: true}))

	select {
	case reason := <-errCh:
		require.NotEmpty(t, reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error frame")
	}
}

func TestRequestActiveSessionsReturnsAnnounced(t *testing.T) {
	url := startTestServer(t)

	a, err := Connect(url, "dev-a", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	resultCh := make(chan []wireproto.SessionAnnouncement, 1)
	go a.Run(Callbacks{OnActiveSessions: func(sessions []wireproto.SessionAnnouncement) { resultCh <- sessions }})

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, a.AnnounceSession(wireproto.SessionAnnouncement{SessionCode: "code-x"}))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, a.RequestActiveSessions())

	select {
	case sessions := <-resultCh:
		require.Len(t, sessions, 1)
		require.Equal(t, "code-x", sessions[0].SessionCode)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for active sessions response")
	}
}
