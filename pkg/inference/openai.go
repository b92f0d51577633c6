package inference

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/roomchat/pkg/chat"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

// OpenAI runs models through any OpenAI-compatible Chat Completions API.
type OpenAI struct {
	client *openai.Client
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key is empty")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAI{client: openai.NewClientWithConfig(oc)}, nil
}

func (o *OpenAI) Run(ctx context.Context, model string, req Request) (Response, error) {
	if err := validateRequest(model, req); err != nil {
		return Response{}, err
	}

	ccr := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
	if len(req.Messages) > 0 {
		for _, m := range req.Messages {
			ccr.Messages = append(ccr.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		}
	} else {
		ccr.Messages = []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: req.Prompt}}
	}

	resp, err := o.client.CreateChatCompletion(ctx, ccr)
	if err != nil {
		return Response{}, errors.Wrapf(chat.ErrBackend, "openai: %v", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, nil
	}
	return Response{Text: resp.Choices[0].Message.Content}, nil
}
