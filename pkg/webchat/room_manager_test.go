package webchat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoomManagerEvictIdleOnce(t *testing.T) {
	m := NewRoomManager(RoomConfig{})
	m.SetEvictionConfig(10*time.Second, time.Second)

	room := m.GetOrCreate("r1")
	room.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())

	evicted := m.evictIdleOnce(time.Now())
	require.Equal(t, 1, evicted)

	_, ok := m.GetRoom("r1")
	require.False(t, ok)
	require.True(t, room.Closed())
}

func TestRoomManagerEvictIdleOnce_SkipsBusy(t *testing.T) {
	m := NewRoomManager(RoomConfig{})
	m.SetEvictionConfig(10*time.Second, time.Second)
	defer m.Close()

	room := m.GetOrCreate("r1")
	room.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())
	room.inflight.Add(1)
	defer room.inflight.Add(-1)

	require.Equal(t, 0, m.evictIdleOnce(time.Now()))
	_, ok := m.GetRoom("r1")
	require.True(t, ok)
}

func TestRoomManagerEvictIdleOnce_SkipsConnectedAndRecent(t *testing.T) {
	m := NewRoomManager(RoomConfig{})
	m.SetEvictionConfig(10*time.Second, time.Second)
	defer m.Close()

	connected := m.GetOrCreate("busy")
	_, err := connected.Join(newStubConn(false))
	require.NoError(t, err)
	connected.lastActivity.Store(time.Now().Add(-time.Hour).UnixNano())

	m.GetOrCreate("fresh")

	require.Equal(t, 0, m.evictIdleOnce(time.Now()))
	require.Equal(t, 2, m.Count())
}

func TestRoomManagerDisposesAfterGrace(t *testing.T) {
	m := NewRoomManager(RoomConfig{IdleGrace: 30 * time.Millisecond})
	defer m.Close()

	room := m.GetOrCreate("r1")
	c, err := room.Join(newStubConn(false))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !room.Busy() }, time.Second, 5*time.Millisecond)

	room.Leave(c)

	require.Eventually(t, func() bool {
		_, ok := m.GetRoom("r1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, room.Closed())

	// the next reference starts from scratch
	fresh := m.GetOrCreate("r1")
	require.NotSame(t, room, fresh)
	snap, err := fresh.Snapshot(context.Background())
	require.NoError(t, err)
	require.Empty(t, snap.Messages)
	require.Equal(t, SessionUninitialized, snap.SessionState)
}

func TestRoomManagerStartEvictionLoop(t *testing.T) {
	m := NewRoomManager(RoomConfig{})
	m.SetEvictionConfig(time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.GetOrCreate("r1")
	m.StartEvictionLoop(ctx)

	require.Eventually(t, func() bool { return m.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRoomsAreIndependent(t *testing.T) {
	m := NewRoomManager(RoomConfig{Inference: backendReturning("ok", nil)})
	defer m.Close()

	a, b := m.GetOrCreate("a"), m.GetOrCreate("b")
	ca, err := a.Join(newStubConn(false))
	require.NoError(t, err)
	require.NoError(t, a.Deliver(ca, userAdd("m1", "only in a")))

	require.Eventually(t, func() bool {
		snap, err := a.Snapshot(context.Background())
		return err == nil && len(snap.Messages) == 2
	}, 2*time.Second, 5*time.Millisecond)

	snap, err := b.Snapshot(context.Background())
	require.NoError(t, err)
	require.Empty(t, snap.Messages)
}
