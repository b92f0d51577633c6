package webchat

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/roomchat/pkg/chat"
	"github.com/go-go-golems/roomchat/pkg/inference"
)

func newTestServer(t *testing.T, cfg RoomConfig) (*httptest.Server, *RoomManager) {
	t.Helper()
	rooms := NewRoomManager(cfg)
	srv := httptest.NewServer(NewRouter(RouterOptions{
		Rooms:       rooms,
		DefaultRoom: "lobby",
		Models: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		}),
		Logger: zerolog.Nop(),
	}))
	t.Cleanup(func() {
		rooms.Close()
		srv.Close()
	})
	return srv, rooms
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) chat.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	ev, err := chat.Decode(data)
	require.NoError(t, err, string(data))
	return ev
}

func TestWSConnectReceivesSnapshotAndSession(t *testing.T) {
	srv, rooms := newTestServer(t, RoomConfig{})
	conn := dial(t, srv, "?room=r1")

	require.Equal(t, chat.AllEvent{Messages: []chat.Message{}}, readEvent(t, conn))
	require.Equal(t, chat.SessionLoadingEvent{}, readEvent(t, conn))
	ready, ok := readEvent(t, conn).(chat.SessionReadyEvent)
	require.True(t, ok)
	require.Regexp(t, hexToken, ready.SessionID)

	_, ok = rooms.GetRoom("r1")
	require.True(t, ok)
}

func TestWSDefaultRoom(t *testing.T) {
	srv, rooms := newTestServer(t, RoomConfig{})
	conn := dial(t, srv, "")
	readEvent(t, conn)

	_, ok := rooms.GetRoom("lobby")
	require.True(t, ok)
}

func TestWSAddIsBroadcastAndAnswered(t *testing.T) {
	srv, _ := newTestServer(t, RoomConfig{Inference: inference.NewResponder(inference.Echo{}, "echo-model")})
	alice := dial(t, srv, "?room=r1")
	for i := 0; i < 3; i++ {
		readEvent(t, alice)
	}
	bob := dial(t, srv, "?room=r1")
	readEvent(t, bob) // all
	readEvent(t, bob) // session status

	require.NoError(t, alice.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"add","id":"m1","user":"alice","role":"user","content":"hello"}`)))

	for _, conn := range []*websocket.Conn{alice, bob} {
		first, ok := readEvent(t, conn).(chat.AddEvent)
		require.True(t, ok)
		require.Equal(t, "m1", first.Message.ID)
		require.Equal(t, "hello", first.Message.Content)

		reply, ok := readEvent(t, conn).(chat.AddEvent)
		require.True(t, ok)
		require.Equal(t, chat.RoleAssistant, reply.Message.Role)
		require.NotEqual(t, "m1", reply.Message.ID)
		require.Equal(t, "[echo-model] You said: hello", reply.Message.Content)
	}

	// a newcomer gets both messages in the snapshot
	carol := dial(t, srv, "?room=r1")
	all, ok := readEvent(t, carol).(chat.AllEvent)
	require.True(t, ok)
	require.Len(t, all.Messages, 2)
	require.Equal(t, "m1", all.Messages[0].ID)
}

func TestWSBackendFailureKeepsConnection(t *testing.T) {
	failing := inference.NewResponder(inference.BackendFunc(func(context.Context, string, inference.Request) (inference.Response, error) {
		return inference.Response{}, errors.Wrap(chat.ErrBackend, "status 503")
	}), "m")
	srv, _ := newTestServer(t, RoomConfig{Inference: failing})
	conn := dial(t, srv, "?room=r1")
	for i := 0; i < 3; i++ {
		readEvent(t, conn)
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"add","id":"m1","user":"alice","role":"user","content":"hello"}`)))

	readEvent(t, conn) // echo of m1
	reply, ok := readEvent(t, conn).(chat.AddEvent)
	require.True(t, ok)
	require.Contains(t, reply.Message.Content, "hello")
	require.Contains(t, reply.Message.Content, "unavailable")

	// still usable afterwards
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"update","id":"m1","user":"alice","role":"user","content":"hello again"}`)))
	upd, ok := readEvent(t, conn).(chat.UpdateEvent)
	require.True(t, ok)
	require.Equal(t, "hello again", upd.Message.Content)
}

func TestWSDisconnectUnregisters(t *testing.T) {
	srv, rooms := newTestServer(t, RoomConfig{})
	conn := dial(t, srv, "?room=r1")
	readEvent(t, conn)

	room, ok := rooms.GetRoom("r1")
	require.True(t, ok)
	require.Equal(t, 1, room.pool.Count())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return room.pool.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRouterHealthAndModels(t *testing.T) {
	srv, _ := newTestServer(t, RoomConfig{})

	for path, want := range map[string]string{
		"/healthz":    `{"status":"ok"}`,
		"/api/models": `[]`,
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.Equal(t, want, string(body))
	}

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, string(body), "roomchat_http_requests_total")
}
