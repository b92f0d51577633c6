package webchat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roomchat/pkg/metrics"
)

const maxInboundFrame = 64 * 1024

// RoomManager maps room ids to live rooms. Rooms are created on first
// attach and disposed once they have been empty for the idle grace period.
type RoomManager struct {
	mu    sync.Mutex
	rooms map[string]*Room
	cfg   RoomConfig

	evictIdle     time.Duration
	evictInterval time.Duration
	evictRunning  bool
}

func NewRoomManager(cfg RoomConfig) *RoomManager {
	return &RoomManager{
		rooms:     map[string]*Room{},
		cfg:       cfg,
		evictIdle: cfg.IdleGrace,
	}
}

// GetOrCreate returns the live room for id, replacing a disposed one.
func (m *RoomManager) GetOrCreate(id string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok && !r.Closed() {
		return r
	}
	r := NewRoom(id, m.cfg, func() { m.disposeIfIdle(id) })
	m.rooms[id] = r
	metrics.RoomsActive.Set(float64(len(m.rooms)))
	log.Debug().Str("component", "webchat").Str("room_id", id).Msg("room created")
	return r
}

func (m *RoomManager) GetRoom(id string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok || r.Closed() {
		return nil, false
	}
	return r, true
}

func (m *RoomManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Attach joins conn to the room and starts its read loop. The read loop
// owns the transport: it unregisters the connection when reads fail.
func (m *RoomManager) Attach(ctx context.Context, roomID string, conn WSConn) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return errors.New("missing room id")
	}
	if conn == nil {
		return errors.New("websocket connection is nil")
	}

	var (
		room *Room
		c    *Connection
		err  error
	)
	// a room can be disposed between lookup and join; retry on a fresh one
	for attempt := 0; attempt < 3; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		room = m.GetOrCreate(roomID)
		c, err = room.Join(conn)
		if !errors.Is(err, ErrRoomClosed) {
			break
		}
		m.forget(roomID, room)
	}
	if err != nil {
		return errors.Wrap(err, "join room")
	}

	go m.readLoop(room, c, conn)
	return nil
}

func (m *RoomManager) readLoop(room *Room, c *Connection, conn WSConn) {
	wsLog := room.log.With().Str("conn", c.Token).Logger()
	defer wsLog.Info().Msg("ws disconnected")
	defer room.Leave(c)

	conn.SetReadLimit(maxInboundFrame)
	if ping := m.cfg.PingInterval; ping > 0 {
		wait := pongWait(ping)
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			wsLog.Debug().Err(err).Msg("ws read loop end")
			return
		}
		if err := room.Deliver(c, data); err != nil {
			wsLog.Debug().Err(err).Msg("room closed, ending read loop")
			return
		}
	}
}

// pongWait gives a peer two ping periods to answer.
func pongWait(ping time.Duration) time.Duration {
	return 2*ping + ping/2
}

func (m *RoomManager) disposeIfIdle(id string) bool {
	m.mu.Lock()
	room, ok := m.rooms[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	if !room.closeIfIdle() {
		return false
	}
	m.forget(id, room)
	return true
}

func (m *RoomManager) forget(id string, room *Room) {
	m.mu.Lock()
	if current, ok := m.rooms[id]; ok && current == room {
		delete(m.rooms, id)
	}
	metrics.RoomsActive.Set(float64(len(m.rooms)))
	m.mu.Unlock()
}

// Close disposes every room.
func (m *RoomManager) Close() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for id, r := range m.rooms {
		rooms = append(rooms, r)
		delete(m.rooms, id)
	}
	metrics.RoomsActive.Set(0)
	m.mu.Unlock()
	for _, r := range rooms {
		r.Close()
	}
}
