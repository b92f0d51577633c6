package inference

import (
	"time"

	"github.com/pkg/errors"
)

// Settings selects and configures a backend.
type Settings struct {
	Backend string

	WorkersAIBaseURL   string
	WorkersAIAccountID string
	WorkersAIAPIToken  string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	GeppettoAPIType string

	Timeout time.Duration
}

func NewBackend(s Settings) (Backend, error) {
	switch s.Backend {
	case "", "echo":
		return Echo{}, nil
	case "workersai":
		return NewWorkersAI(WorkersAIConfig{
			BaseURL:   s.WorkersAIBaseURL,
			AccountID: s.WorkersAIAccountID,
			APIToken:  s.WorkersAIAPIToken,
			Timeout:   s.Timeout,
			RetryMax:  2,
		})
	case "openai":
		return NewOpenAI(OpenAIConfig{APIKey: s.OpenAIAPIKey, BaseURL: s.OpenAIBaseURL})
	case "geppetto":
		return NewGeppetto(GeppettoConfig{APIType: s.GeppettoAPIType, APIKey: s.OpenAIAPIKey, BaseURL: s.OpenAIBaseURL})
	default:
		return nil, errors.Errorf("unknown inference backend %q", s.Backend)
	}
}
