package webchat

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roomchat/pkg/chat"
	"github.com/go-go-golems/roomchat/pkg/inference"
	"github.com/go-go-golems/roomchat/pkg/metrics"
)

var ErrRoomClosed = errors.New("room closed")

const (
	DefaultAssistantName     = "AI Assistant"
	DefaultDocsAssistantName = "Docs Assistant"
)

// DocsAnswerer answers a query from documentation search. It never fails;
// problems come back as explanatory text.
type DocsAnswerer interface {
	Answer(ctx context.Context, sessions chat.SessionProvider, query, model string) string
}

// EventTap observes every event a room broadcasts. Publish must not block.
type EventTap interface {
	Publish(roomID string, eventType chat.EventType, payload []byte)
}

// RoomConfig carries what rooms share inside one RoomManager.
type RoomConfig struct {
	IdleGrace    time.Duration
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration

	Sessions  SessionInitializer
	Inference *inference.Responder
	Docs      DocsAnswerer
	Tap       EventTap

	AssistantName     string
	DocsAssistantName string
}

func (c RoomConfig) withDefaults() RoomConfig {
	if c.Sessions == nil {
		c.Sessions = LocalSessionInitializer{}
	}
	if c.Inference == nil {
		c.Inference = inference.NewResponder(inference.Echo{}, "")
	}
	if strings.TrimSpace(c.AssistantName) == "" {
		c.AssistantName = DefaultAssistantName
	}
	if strings.TrimSpace(c.DocsAssistantName) == "" {
		c.DocsAssistantName = DefaultDocsAssistantName
	}
	return c
}

type sessionResult struct {
	token string
	err   error
}

// RoomSnapshot is a consistent copy of a room's state.
type RoomSnapshot struct {
	RoomID       string
	Messages     []chat.Message
	SessionState SessionState
	SessionToken string
	Connections  int
}

// Room is the session controller of one chat room. Its message log, session
// state and registry membership are only touched from the room's own
// goroutine; callers post work to it.
type Room struct {
	ID string

	cfg  RoomConfig
	pool *ConnectionPool
	msgs *MessageLog

	session      SessionState
	sessionToken string
	sessionErr   string
	waiters      []chan sessionResult

	cmds     chan func()
	ctx      context.Context
	cancel   context.CancelFunc
	stopped  chan struct{}
	closed   atomic.Bool
	stopOnce sync.Once

	inflight     atomic.Int64
	lastActivity atomic.Int64

	log zerolog.Logger
}

// NewRoom starts the room goroutine. onIdle is called when the room has had
// no connections for cfg.IdleGrace.
func NewRoom(id string, cfg RoomConfig, onIdle func()) *Room {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	r := &Room{
		ID:      id,
		cfg:     cfg,
		msgs:    NewMessageLog(),
		cmds:    make(chan func()),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
		log:     log.With().Str("component", "webchat").Str("room_id", id).Logger(),
	}
	r.pool = NewConnectionPool(id, cfg.IdleGrace, onIdle,
		WithSendBuffer(cfg.SendBuffer),
		WithWriteTimeout(cfg.WriteTimeout),
		WithPingInterval(cfg.PingInterval),
	)
	r.touch()
	go r.run()
	return r
}

func (r *Room) run() {
	defer close(r.stopped)
	for {
		select {
		case <-r.ctx.Done():
			return
		case fn := <-r.cmds:
			fn()
		}
	}
}

// post hands fn to the room goroutine. It fails once the room is closed.
func (r *Room) post(fn func()) error {
	select {
	case <-r.ctx.Done():
		return ErrRoomClosed
	case r.cmds <- fn:
		return nil
	}
}

// call runs fn on the room goroutine and waits for it.
func (r *Room) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := r.post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrRoomClosed
	}
}

func (r *Room) touch() {
	r.lastActivity.Store(time.Now().UnixNano())
}

func (r *Room) LastActivity() time.Time {
	return time.Unix(0, r.lastActivity.Load())
}

// Closed reports whether the room has been disposed.
func (r *Room) Closed() bool {
	return r.closed.Load()
}

// Join registers conn, sends it the message log, and reports the session
// status, starting session initialisation if the room has no token.
func (r *Room) Join(conn Conn) (*Connection, error) {
	var c *Connection
	err := r.call(context.Background(), func() {
		r.touch()
		c = r.pool.Add(conn)
		r.sendTo(c, chat.AllEvent{Messages: r.msgs.Snapshot()})

		switch r.session {
		case SessionUninitialized, SessionFailed:
			r.startSessionInit()
		case SessionLoading:
			r.sendTo(c, chat.SessionLoadingEvent{})
		case SessionReady:
			r.sendTo(c, chat.SessionReadyEvent{SessionID: r.sessionToken})
		}
	})
	if err != nil {
		if c != nil {
			r.pool.Remove(c)
		}
		return nil, err
	}
	r.log.Debug().Str("conn", c.Token).Msg("connection joined")
	return c, nil
}

// Leave unregisters c.
func (r *Room) Leave(c *Connection) {
	if c == nil {
		return
	}
	if err := r.post(func() {
		r.touch()
		r.pool.Remove(c)
	}); err != nil {
		c.shutdown()
	}
}

// Deliver decodes an inbound frame from c and hands it to the room.
// Malformed frames are logged and dropped.
func (r *Room) Deliver(c *Connection, data []byte) error {
	ev, err := chat.Decode(data)
	if err != nil {
		metrics.MalformedEvents.Inc()
		r.log.Warn().Err(err).Str("conn", tokenOf(c)).Int("bytes", len(data)).Msg("dropping malformed event")
		return nil
	}
	return r.post(func() { r.handleInbound(c, ev) })
}

func (r *Room) handleInbound(c *Connection, ev chat.Event) {
	r.touch()
	switch e := ev.(type) {
	case chat.AddEvent:
		r.msgs.Upsert(e.Message)
		r.broadcast(e, nil)
		if e.Message.Role == chat.RoleUser {
			r.dispatch(e)
		}
	case chat.UpdateEvent:
		r.msgs.Upsert(e.Message)
		r.broadcast(e, nil)
	default:
		r.log.Debug().Str("conn", tokenOf(c)).Str("type", string(ev.Type())).Msg("ignoring server-only event from client")
	}
}

func (r *Room) dispatch(ev chat.AddEvent) {
	path := "inference"
	if ev.UseRag && r.cfg.Docs != nil {
		path = "retrieval"
	}
	history := r.msgs.HistoryAsConversation()
	r.inflight.Add(1)

	go func() {
		defer r.inflight.Add(-1)
		start := time.Now()
		text, author, outcome := r.respond(path, ev, history)
		metrics.DispatchTotal.WithLabelValues(path, outcome).Inc()
		metrics.DispatchDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())

		reply := chat.Message{
			ID:      uuid.NewString(),
			User:    author,
			Role:    chat.RoleAssistant,
			Content: text,
		}
		if err := r.post(func() {
			r.touch()
			r.msgs.Upsert(reply)
			r.broadcast(chat.AddEvent{Message: reply}, nil)
		}); err != nil {
			r.log.Debug().Str("message_id", ev.Message.ID).Msg("room closed before reply was delivered")
		}
	}()
}

// respond runs one responder. Errors and panics become the fallback text.
func (r *Room) respond(path string, ev chat.AddEvent, history []chat.Turn) (text, author, outcome string) {
	author = r.cfg.AssistantName
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Str("path", path).Msg("responder panicked")
			text, author, outcome = FallbackText(ev.Message.Content), r.cfg.AssistantName, "fallback"
		}
	}()

	if path == "retrieval" {
		return r.cfg.Docs.Answer(r.ctx, r, ev.Message.Content, ev.Model), r.cfg.DocsAssistantName, "ok"
	}
	out, err := r.cfg.Inference.Respond(r.ctx, history, ev.Model)
	if err != nil {
		r.log.Warn().Err(err).Str("message_id", ev.Message.ID).Msg("inference failed, sending fallback")
		return FallbackText(ev.Message.Content), author, "fallback"
	}
	return out, author, "ok"
}

// FallbackText is the assistant reply used when inference fails.
func FallbackText(content string) string {
	return "The AI service is currently unavailable. Your message was: \"" + content + "\""
}

// EnsureSession returns the room's session token, initialising a session
// first if there is none. Concurrent callers share one attempt.
func (r *Room) EnsureSession(ctx context.Context) (string, error) {
	wait := make(chan sessionResult, 1)
	err := r.call(ctx, func() {
		if r.session == SessionReady {
			wait <- sessionResult{token: r.sessionToken}
			return
		}
		r.waiters = append(r.waiters, wait)
		if r.session != SessionLoading {
			r.startSessionInit()
		}
	})
	if err != nil {
		return "", errors.Wrapf(chat.ErrSessionUnavailable, "%v", err)
	}
	select {
	case res := <-wait:
		return res.token, res.err
	case <-ctx.Done():
		return "", errors.Wrapf(chat.ErrSessionUnavailable, "%v", ctx.Err())
	case <-r.stopped:
		return "", errors.Wrap(chat.ErrSessionUnavailable, "room closed")
	}
}

func (r *Room) startSessionInit() {
	r.session = SessionLoading
	r.broadcast(chat.SessionLoadingEvent{}, nil)
	r.inflight.Add(1)

	go func() {
		defer r.inflight.Add(-1)
		token, err := r.cfg.Sessions.Initialize(r.ctx)
		if err == nil && strings.TrimSpace(token) == "" {
			err = errors.New("session initializer returned an empty token")
		}
		_ = r.post(func() { r.finishSessionInit(token, err) })
	}()
}

func (r *Room) finishSessionInit(token string, err error) {
	waiters := r.waiters
	r.waiters = nil

	if err != nil {
		r.session = SessionFailed
		r.sessionErr = err.Error()
		r.log.Warn().Err(err).Msg("session initialisation failed")
		r.broadcast(chat.SessionFailedEvent{Error: r.sessionErr}, nil)
		res := sessionResult{err: errors.Wrapf(chat.ErrSessionUnavailable, "%v", err)}
		for _, w := range waiters {
			w <- res
		}
		return
	}

	r.session = SessionReady
	r.sessionToken = token
	r.sessionErr = ""
	r.log.Info().Msg("session ready")
	r.broadcast(chat.SessionReadyEvent{SessionID: token}, nil)
	for _, w := range waiters {
		w <- sessionResult{token: token}
	}
}

// broadcast encodes ev once and fans it out. Runs on the room goroutine.
func (r *Room) broadcast(ev chat.Event, exclude *Connection) {
	data, err := chat.Encode(ev)
	if err != nil {
		r.log.Error().Err(err).Str("type", string(ev.Type())).Msg("encode event")
		return
	}
	n := r.pool.Broadcast(data, exclude)
	metrics.EventsBroadcast.WithLabelValues(string(ev.Type())).Inc()
	r.log.Trace().Str("type", string(ev.Type())).Int("delivered", n).Msg("broadcast")
	if r.cfg.Tap != nil {
		r.cfg.Tap.Publish(r.ID, ev.Type(), data)
	}
}

func (r *Room) sendTo(c *Connection, ev chat.Event) {
	data, err := chat.Encode(ev)
	if err != nil {
		r.log.Error().Err(err).Str("type", string(ev.Type())).Msg("encode event")
		return
	}
	r.pool.SendToOne(c, data)
}

// Snapshot copies the room state on the room goroutine.
func (r *Room) Snapshot(ctx context.Context) (RoomSnapshot, error) {
	var snap RoomSnapshot
	err := r.call(ctx, func() {
		snap = RoomSnapshot{
			RoomID:       r.ID,
			Messages:     r.msgs.Snapshot(),
			SessionState: r.session,
			SessionToken: r.sessionToken,
			Connections:  r.pool.Count(),
		}
	})
	return snap, err
}

// Busy reports whether a responder call or session initialisation is running.
func (r *Room) Busy() bool {
	return r.inflight.Load() > 0
}

// closeIfIdle stops the room when it has no connections and no work in
// flight. The check and the stop happen on the room goroutine, so a
// concurrent Join either lands before it (and keeps the room) or fails with
// ErrRoomClosed.
func (r *Room) closeIfIdle() bool {
	idle := false
	if err := r.call(context.Background(), func() {
		if !r.pool.IsEmpty() || r.Busy() {
			return
		}
		idle = true
		r.closed.Store(true)
		r.cancel()
	}); err != nil {
		if !r.Closed() {
			return false
		}
		idle = true
	}
	if idle {
		r.stop()
	}
	return idle
}

// Close stops the room unconditionally and drops its connections.
func (r *Room) Close() {
	r.closed.Store(true)
	r.cancel()
	r.stop()
}

func (r *Room) stop() {
	r.stopOnce.Do(func() {
		<-r.stopped
		r.pool.CloseAll()
		r.log.Info().Int("messages", r.msgs.Len()).Msg("room disposed")
	})
}

func tokenOf(c *Connection) string {
	if c == nil {
		return ""
	}
	return c.Token
}
