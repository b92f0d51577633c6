package inference

import (
	"context"
	"fmt"
)

// Echo is a local backend that repeats the last user message. It keeps the
// server usable without credentials.
type Echo struct{}

func (Echo) Run(_ context.Context, model string, req Request) (Response, error) {
	if err := validateRequest(model, req); err != nil {
		return Response{}, err
	}
	last := req.Prompt
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}
	return Response{Text: fmt.Sprintf("[%s] You said: %s", model, last)}, nil
}
