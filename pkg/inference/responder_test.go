package inference

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/roomchat/pkg/chat"
)

func TestResponderSendsFullHistoryInOrder(t *testing.T) {
	var gotModel string
	var gotReq Request
	backend := BackendFunc(func(_ context.Context, model string, req Request) (Response, error) {
		gotModel = model
		gotReq = req
		return Response{Text: "pong"}, nil
	})

	history := []chat.Turn{
		{Role: chat.RoleUser, Content: "one"},
		{Role: chat.RoleAssistant, Content: "two"},
		{Role: chat.RoleUser, Content: "three"},
	}
	out, err := NewResponder(backend, "default-model").Respond(context.Background(), history, "")
	require.NoError(t, err)
	require.Equal(t, "pong", out)
	require.Equal(t, "default-model", gotModel)
	require.Equal(t, []Message{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
	}, gotReq.Messages)
}

func TestResponderUsesSelectedModel(t *testing.T) {
	var gotModel string
	backend := BackendFunc(func(_ context.Context, model string, _ Request) (Response, error) {
		gotModel = model
		return Response{Text: "ok"}, nil
	})
	_, err := NewResponder(backend, "default-model").Respond(context.Background(), []chat.Turn{{Role: chat.RoleUser, Content: "x"}}, "picked")
	require.NoError(t, err)
	require.Equal(t, "picked", gotModel)
}

func TestResponderFallsBackOnBlankText(t *testing.T) {
	backend := BackendFunc(func(context.Context, string, Request) (Response, error) {
		return Response{Text: "  \n"}, nil
	})
	out, err := NewResponder(backend, "m").Respond(context.Background(), []chat.Turn{{Role: chat.RoleUser, Content: "x"}}, "")
	require.NoError(t, err)
	require.Equal(t, NoResponseText, out)
}

func TestResponderPropagatesBackendErrors(t *testing.T) {
	backend := BackendFunc(func(context.Context, string, Request) (Response, error) {
		return Response{}, errors.Wrap(chat.ErrBackend, "down")
	})
	_, err := NewResponder(backend, "m").Respond(context.Background(), []chat.Turn{{Role: chat.RoleUser, Content: "x"}}, "")
	require.Error(t, err)
	require.True(t, errors.Is(err, chat.ErrBackend))
}

func TestEchoRepeatsLastUserMessage(t *testing.T) {
	resp, err := Echo{}.Run(context.Background(), "m", Request{Messages: []Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "second"},
	}})
	require.NoError(t, err)
	require.Contains(t, resp.Text, "second")

	_, err = Echo{}.Run(context.Background(), "m", Request{})
	require.Error(t, err)
}

func TestNewBackendSelectsImplementation(t *testing.T) {
	b, err := NewBackend(Settings{})
	require.NoError(t, err)
	require.IsType(t, Echo{}, b)

	_, err = NewBackend(Settings{Backend: "workersai"})
	require.ErrorContains(t, err, "account id is empty")

	_, err = NewBackend(Settings{Backend: "nope"})
	require.ErrorContains(t, err, "unknown inference backend")
}
