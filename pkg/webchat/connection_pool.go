package webchat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roomchat/pkg/metrics"
)

const (
	DefaultSendBuffer   = 64
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// ConnectionPool is the connection registry of one room. Broadcast skips
// connections that are no longer open; they stay registered until Remove.
type ConnectionPool struct {
	roomID       string
	mu           sync.Mutex
	conns        map[*Connection]struct{}
	idleTimer    *time.Timer
	idleTimeout  time.Duration
	onIdle       func()
	sendBuffer   int
	writeTimeout time.Duration
	pingInterval time.Duration
	log          zerolog.Logger
}

type PoolOption func(*ConnectionPool)

func WithSendBuffer(n int) PoolOption {
	return func(cp *ConnectionPool) {
		if n > 0 {
			cp.sendBuffer = n
		}
	}
}

func WithWriteTimeout(d time.Duration) PoolOption {
	return func(cp *ConnectionPool) { cp.writeTimeout = d }
}

func WithPingInterval(d time.Duration) PoolOption {
	return func(cp *ConnectionPool) { cp.pingInterval = d }
}

func NewConnectionPool(roomID string, idleTimeout time.Duration, onIdle func(), opts ...PoolOption) *ConnectionPool {
	cp := &ConnectionPool{
		roomID:       roomID,
		conns:        map[*Connection]struct{}{},
		idleTimeout:  idleTimeout,
		onIdle:       onIdle,
		sendBuffer:   DefaultSendBuffer,
		writeTimeout: DefaultWriteTimeout,
		log:          log.With().Str("component", "webchat").Str("room_id", roomID).Logger(),
	}
	for _, o := range opts {
		o(cp)
	}
	return cp
}

// Add registers conn and returns its registry entry with a fresh token.
func (cp *ConnectionPool) Add(conn Conn) *Connection {
	if cp == nil || conn == nil {
		return nil
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	c := newConnection(uuid.NewString(), conn, cp.sendBuffer, cp.writeTimeout, cp.pingInterval, cp.log)
	cp.conns[c] = struct{}{}
	metrics.ConnectionsActive.Inc()
	cp.stopIdleTimerLocked()
	return c
}

func (cp *ConnectionPool) Remove(c *Connection) {
	if c == nil {
		return
	}
	if cp != nil {
		cp.mu.Lock()
		cp.removeLocked(c)
		cp.scheduleIdleTimerLocked()
		cp.mu.Unlock()
	}
	c.shutdown()
}

func (cp *ConnectionPool) removeLocked(c *Connection) {
	if _, ok := cp.conns[c]; !ok {
		return
	}
	delete(cp.conns, c)
	metrics.ConnectionsActive.Dec()
}

// ForEach visits every registered connection, open or not.
func (cp *ConnectionPool) ForEach(visit func(*Connection)) {
	if cp == nil || visit == nil {
		return
	}
	cp.mu.Lock()
	conns := make([]*Connection, 0, len(cp.conns))
	for c := range cp.conns {
		conns = append(conns, c)
	}
	cp.mu.Unlock()
	for _, c := range conns {
		visit(c)
	}
}

// Broadcast queues data on every open connection except exclude and returns
// how many connections accepted it. Delivery failures are not reported.
func (cp *ConnectionPool) Broadcast(data []byte, exclude *Connection) int {
	if cp == nil || len(data) == 0 {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	delivered := 0
	for c := range cp.conns {
		if c == exclude || !c.IsOpen() {
			continue
		}
		// a failed enqueue shuts the connection down; its read loop unregisters it
		if c.enqueue(data) {
			delivered++
		}
	}
	return delivered
}

func (cp *ConnectionPool) SendToOne(c *Connection, data []byte) bool {
	if cp == nil || c == nil || len(data) == 0 {
		return false
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if _, ok := cp.conns[c]; !ok {
		return false
	}
	return c.enqueue(data)
}

func (cp *ConnectionPool) Count() int {
	if cp == nil {
		return 0
	}
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return len(cp.conns)
}

func (cp *ConnectionPool) IsEmpty() bool {
	return cp.Count() == 0
}

func (cp *ConnectionPool) CloseAll() {
	if cp == nil {
		return
	}
	cp.mu.Lock()
	for c := range cp.conns {
		cp.removeLocked(c)
		c.shutdown()
	}
	cp.stopIdleTimerLocked()
	cp.mu.Unlock()
}

func (cp *ConnectionPool) stopIdleTimerLocked() {
	if cp.idleTimer != nil {
		cp.idleTimer.Stop()
		cp.idleTimer = nil
	}
}

func (cp *ConnectionPool) scheduleIdleTimerLocked() {
	if len(cp.conns) != 0 || cp.idleTimeout <= 0 || cp.onIdle == nil {
		cp.stopIdleTimerLocked()
		return
	}
	if cp.idleTimer != nil {
		return
	}
	cp.idleTimer = time.AfterFunc(cp.idleTimeout, cp.triggerIdle)
}

func (cp *ConnectionPool) triggerIdle() {
	if cp == nil {
		return
	}
	var callback func()
	cp.mu.Lock()
	if len(cp.conns) == 0 {
		callback = cp.onIdle
	}
	cp.idleTimer = nil
	cp.mu.Unlock()
	if callback != nil {
		callback()
	}
}
