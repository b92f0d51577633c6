package inference

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"github.com/go-go-golems/roomchat/pkg/chat"
)

const (
	// NoResponseText is returned when the backend answers without usable text.
	NoResponseText = "Sorry, I couldn't come up with a response."
	DefaultModel   = "@cf/meta/llama-3.1-8b-instruct"
)

// Responder answers from the full conversation history. Backend errors are
// returned to the caller untouched; the room applies the fallback policy.
type Responder struct {
	backend      Backend
	defaultModel string
}

func NewResponder(backend Backend, defaultModel string) *Responder {
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = DefaultModel
	}
	return &Responder{backend: backend, defaultModel: defaultModel}
}

func (r *Responder) Respond(ctx context.Context, history []chat.Turn, model string) (string, error) {
	if strings.TrimSpace(model) == "" {
		model = r.defaultModel
	}
	resp, err := r.backend.Run(ctx, model, Request{Messages: TurnsToMessages(history)})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Text) == "" {
		return NoResponseText, nil
	}
	return resp.Text, nil
}

// TurnsToMessages keeps the history order and drops nothing; context-length
// enforcement is the backend's business.
func TurnsToMessages(history []chat.Turn) []Message {
	return lo.Map(history, func(t chat.Turn, _ int) Message {
		return Message{Role: string(t.Role), Content: t.Content}
	})
}
