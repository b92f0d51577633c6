package webchat

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// SetEvictionConfig sets how long an empty room may sit unused before the
// sweep disposes it, and how often the sweep runs.
func (m *RoomManager) SetEvictionConfig(idle, interval time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.evictIdle = idle
	m.evictInterval = interval
	m.mu.Unlock()
}

// StartEvictionLoop sweeps idle rooms until ctx is done. It catches rooms
// whose grace timer fired while a reply or session init was still running.
// Calling it again while a sweep is running does nothing.
func (m *RoomManager) StartEvictionLoop(ctx context.Context) {
	if m == nil {
		return
	}
	if ctx == nil {
		panic("webchat: StartEvictionLoop requires non-nil ctx")
	}
	m.mu.Lock()
	idle, interval := m.evictIdle, m.evictInterval
	if m.evictRunning || idle <= 0 || interval <= 0 {
		m.mu.Unlock()
		return
	}
	m.evictRunning = true
	m.mu.Unlock()

	log.Debug().
		Str("component", "webchat").
		Dur("idle", idle).
		Dur("interval", interval).
		Msg("room sweep started")
	go m.sweepRooms(ctx, interval)
}

func (m *RoomManager) sweepRooms(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer func() {
		m.mu.Lock()
		m.evictRunning = false
		m.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.evictIdleOnce(now); n > 0 {
				log.Info().
					Str("component", "webchat").
					Int("evicted", n).
					Int("rooms", m.Count()).
					Msg("room sweep")
			}
		}
	}
}

// evictIdleOnce disposes every room that is empty, not busy and untouched for
// the idle window, and returns how many were removed.
func (m *RoomManager) evictIdleOnce(now time.Time) int {
	if m == nil {
		return 0
	}
	if now.IsZero() {
		now = time.Now()
	}

	m.mu.Lock()
	idle := m.evictIdle
	if idle <= 0 {
		m.mu.Unlock()
		return 0
	}
	candidates := make(map[string]*Room, len(m.rooms))
	for id, r := range m.rooms {
		if shouldEvictRoom(now, idle, r) {
			candidates[id] = r
		}
	}
	m.mu.Unlock()

	evicted := 0
	for id, room := range candidates {
		// a join may have landed since the check; closeIfIdle re-checks on the room goroutine
		if !room.closeIfIdle() {
			continue
		}
		m.forget(id, room)
		evicted++
		log.Debug().
			Str("component", "webchat").
			Str("room_id", id).
			Dur("unused_for", now.Sub(room.LastActivity())).
			Msg("room evicted")
	}
	return evicted
}

// shouldEvictRoom reports whether room is a sweep candidate. Rooms that are
// already closed are always candidates so the registry drops them.
func shouldEvictRoom(now time.Time, idle time.Duration, room *Room) bool {
	if room == nil {
		return false
	}
	if room.Closed() {
		return true
	}
	if !room.pool.IsEmpty() || room.Busy() {
		return false
	}
	return now.Sub(room.LastActivity()) >= idle
}
