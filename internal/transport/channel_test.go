package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoopbackPairDelivers(t *testing.T) {
	a, b := NewLoopbackPair()
	require.Equal(t, StateOpen, a.State())

	require.NoError(t, a.Send(Frame("hello")))
	select {
	case f := <-b.Recv():
		require.Equal(t, "hello", string(f))
	default:
		t.Fatal("expected frame on b")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	a, _ := NewLoopbackPair()
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	require.Equal(t, StateClosed, a.State())

	err := a.Send(Frame("x"))
	require.Error(t, err)
}

func TestManagerMeshReadinessGate(t *testing.T) {
	m := NewManager(zap.NewNop())
	a, b := NewLoopbackPair()
	m.AddPeer("d2", a)
	require.True(t, m.AllOpen())

	require.True(t, m.MarkSelfSent())
	require.False(t, m.MarkSelfSent()) // sent exactly once

	require.NoError(t, b.Close())
	m.AddPeer("d3", b)
	require.False(t, m.AllOpen())
}

func TestOfflineBundleRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBundleWriter(dir)
	require.NoError(t, err)

	require.NoError(t, w.Write("r1", "d1", "", []byte("broadcast-1")))
	require.NoError(t, w.Write("r2", "d1", "d2", []byte("share-to-d2")))

	frames, err := ReadBundle(dir)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, "r1", frames[0].Round)
	require.Equal(t, "r2", frames[1].Round)
	require.Equal(t, "d2", frames[1].ToID)

	_, err = ReadBundle(dir + "-missing")
	require.Error(t, err)
}
