package inference

import (
	"context"
	"strings"

	"github.com/go-go-golems/geppetto/pkg/inference/engine"
	"github.com/go-go-golems/geppetto/pkg/inference/engine/factory"
	"github.com/go-go-golems/geppetto/pkg/steps/ai/settings"
	aitypes "github.com/go-go-golems/geppetto/pkg/steps/ai/types"
	"github.com/go-go-golems/geppetto/pkg/turns"
	"github.com/pkg/errors"

	"github.com/go-go-golems/roomchat/pkg/chat"
)

// GeppettoConfig selects the provider a geppetto engine talks to.
// APIType defaults to openai.
type GeppettoConfig struct {
	APIType string
	APIKey  string
	BaseURL string
}

// Geppetto runs each request as a single turn through a geppetto engine.
// The engine is built per call because the model is chosen per message.
type Geppetto struct {
	newEngine func(model string) (engine.Engine, error)
}

func NewGeppetto(cfg GeppettoConfig) (*Geppetto, error) {
	apiType := strings.TrimSpace(cfg.APIType)
	if apiType == "" {
		apiType = string(aitypes.ApiTypeOpenAI)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("geppetto: api key is empty")
	}

	return &Geppetto{newEngine: func(model string) (engine.Engine, error) {
		stepSettings, err := settings.NewStepSettings()
		if err != nil {
			return nil, errors.Wrap(err, "create step settings")
		}
		at := aitypes.ApiType(apiType)
		stepSettings.Chat.ApiType = &at
		stepSettings.Chat.Engine = &model
		if stepSettings.API.APIKeys == nil {
			stepSettings.API.APIKeys = map[string]string{}
		}
		stepSettings.API.APIKeys[apiType+"-api-key"] = cfg.APIKey
		if cfg.BaseURL != "" {
			if stepSettings.API.BaseUrls == nil {
				stepSettings.API.BaseUrls = map[string]string{}
			}
			stepSettings.API.BaseUrls[apiType+"-base-url"] = strings.TrimRight(cfg.BaseURL, "/")
		}
		return factory.NewEngineFromStepSettings(stepSettings)
	}}, nil
}

func (g *Geppetto) Run(ctx context.Context, model string, req Request) (Response, error) {
	if err := validateRequest(model, req); err != nil {
		return Response{}, err
	}
	eng, err := g.newEngine(model)
	if err != nil {
		return Response{}, errors.Wrapf(chat.ErrBackend, "geppetto: engine init: %v", err)
	}

	seed := seedTurn(req)
	prevLen := len(seed.Blocks)
	out, err := eng.RunInference(ctx, seed)
	if err != nil {
		return Response{}, errors.Wrapf(chat.ErrBackend, "geppetto: %v", err)
	}
	return Response{Text: lastAssistantText(out, prevLen)}, nil
}

func seedTurn(req Request) *turns.Turn {
	seed := &turns.Turn{}
	if len(req.Messages) == 0 {
		turns.AppendBlock(seed, turns.NewUserTextBlock(req.Prompt))
		return seed
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			turns.AppendBlock(seed, turns.NewSystemTextBlock(m.Content))
		case string(chat.RoleAssistant):
			turns.AppendBlock(seed, turns.NewAssistantTextBlock(m.Content))
		default:
			turns.AppendBlock(seed, turns.NewUserTextBlock(m.Content))
		}
	}
	return seed
}

// lastAssistantText returns the newest LLM text block appended after from.
func lastAssistantText(t *turns.Turn, from int) string {
	if t == nil {
		return ""
	}
	if from > len(t.Blocks) {
		from = 0
	}
	for i := len(t.Blocks) - 1; i >= from; i-- {
		b := t.Blocks[i]
		if b.Kind != turns.BlockKindLLMText {
			continue
		}
		if txt, ok := b.Payload[turns.PayloadKeyText].(string); ok {
			return txt
		}
	}
	return ""
}
