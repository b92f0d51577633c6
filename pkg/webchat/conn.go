package webchat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Conn is the write side of a websocket connection. *websocket.Conn
// satisfies it; tests use stubs.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// WSConn is the full transport handed to RoomManager.Attach.
type WSConn interface {
	Conn
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
}

var _ WSConn = (*websocket.Conn)(nil)

// Connection is a registered client. Writes go through a bounded queue
// drained by a single writer goroutine; once the queue overflows or a write
// fails the connection is no longer open and its transport is closed.
type Connection struct {
	Token string

	conn         Conn
	send         chan []byte
	open         atomic.Bool
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingInterval time.Duration
	log          zerolog.Logger
}

func newConnection(token string, conn Conn, sendBuffer int, writeTimeout, pingInterval time.Duration, logger zerolog.Logger) *Connection {
	if sendBuffer <= 0 {
		sendBuffer = 1
	}
	c := &Connection{
		Token:        token,
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		log:          logger.With().Str("conn", token).Logger(),
	}
	c.open.Store(true)
	go c.writeLoop()
	return c
}

// IsOpen reports whether the connection still accepts writes.
func (c *Connection) IsOpen() bool {
	return c != nil && c.open.Load()
}

// enqueue never blocks. It returns false when the payload was not queued.
func (c *Connection) enqueue(data []byte) bool {
	if !c.IsOpen() {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warn().Int("buffer", cap(c.send)).Msg("ws send buffer full, dropping connection")
		c.shutdown()
		return false
	}
}

func (c *Connection) writeLoop() {
	var pings <-chan time.Time
	if c.pingInterval > 0 {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				c.log.Debug().Err(err).Msg("ws write failed, dropping connection")
				c.shutdown()
				return
			}
		case <-pings:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.log.Debug().Err(err).Msg("ws ping failed, dropping connection")
				c.shutdown()
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteMessage(messageType, data)
}

// shutdown marks the connection closed and closes the transport. The read
// loop observes the closed transport and unregisters the connection.
func (c *Connection) shutdown() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
		_ = c.conn.Close()
	})
}
