// Package inference talks to model-inference backends and turns a room's
// conversation into an assistant reply.
package inference

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Message is one entry of a conversation-history request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request supports both calling conventions of the backend: a message list,
// or a single prompt with sampling knobs. Messages wins when both are set.
type Request struct {
	Messages    []Message `json:"messages,omitempty"`
	Prompt      string    `json:"prompt,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type Response struct {
	Text string `json:"response"`
}

// Backend runs a model. Implementations return chat.ErrBackend-wrapped errors
// for transport and application failures.
type Backend interface {
	Run(ctx context.Context, model string, req Request) (Response, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, model string, req Request) (Response, error)

func (f BackendFunc) Run(ctx context.Context, model string, req Request) (Response, error) {
	return f(ctx, model, req)
}

func validateRequest(model string, req Request) error {
	if strings.TrimSpace(model) == "" {
		return errors.New("inference: model is empty")
	}
	if len(req.Messages) == 0 && strings.TrimSpace(req.Prompt) == "" {
		return errors.New("inference: request has neither messages nor prompt")
	}
	return nil
}
