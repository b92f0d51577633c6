package chat

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDecodeAddEvent(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"add","id":"m1","user":"alice","role":"user","content":"hello","model":"m","useRag":true}`))
	require.NoError(t, err)

	add, ok := ev.(AddEvent)
	require.True(t, ok)
	require.Equal(t, "m1", add.ID)
	require.Equal(t, "alice", add.User)
	require.Equal(t, RoleUser, add.Role)
	require.Equal(t, "hello", add.Content)
	require.Equal(t, "m", add.Model)
	require.True(t, add.UseRag)
}

func TestDecodeDefaultsRoleToUser(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"add","id":"m1","content":"hi"}`))
	require.NoError(t, err)
	require.Equal(t, RoleUser, ev.(AddEvent).Role)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":     `{"type":`,
		"array":        `[1,2,3]`,
		"missing type": `{"id":"m1"}`,
		"unknown type": `{"type":"delete","id":"m1"}`,
		"missing id":   `{"type":"add","content":"hello"}`,
		"blank id":     `{"type":"update","id":"  "}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformedEvent))
		})
	}
}

func TestEncodeAllAlwaysCarriesMessages(t *testing.T) {
	b, err := Encode(AllEvent{})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"all","messages":[]}`, string(b))
}

func TestEncodeFlattensMessage(t *testing.T) {
	b, err := Encode(AddEvent{Message: Message{ID: "a1", User: "AI Assistant", Role: RoleAssistant, Content: "ok"}})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	require.Equal(t, "add", m["type"])
	require.Equal(t, "a1", m["id"])
	require.Equal(t, "assistant", m["role"])
	require.Equal(t, "AI Assistant", m["user"])
	require.NotContains(t, m, "useRag")
}

func TestEncodeSessionEvents(t *testing.T) {
	b, err := Encode(SessionReadyEvent{SessionID: "0123456789abcdef"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"session_ready","sessionId":"0123456789abcdef"}`, string(b))

	b, err = Encode(SessionFailedEvent{Error: "boom"})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"session_failed","error":"boom"}`, string(b))

	b, err = Encode(SessionLoadingEvent{})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"session_loading"}`, string(b))
}

func TestSessionEventsDecodeBack(t *testing.T) {
	for _, ev := range []Event{SessionLoadingEvent{}, SessionReadyEvent{SessionID: "abc"}, SessionFailedEvent{Error: "x"}} {
		b, err := Encode(ev)
		require.NoError(t, err)
		got, err := Decode(b)
		require.NoError(t, err)
		require.Equal(t, ev, got)
	}
}

func TestRoleIsConversational(t *testing.T) {
	require.True(t, RoleUser.IsConversational())
	require.True(t, RoleAssistant.IsConversational())
	require.False(t, Role("system").IsConversational())
}
