// Package catalog lists the models a client may select.
package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Model is one catalog entry as stored by the catalog source.
type Model struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Provider    string `json:"provider,omitempty" yaml:"provider,omitempty"`
	RequiresKey bool   `json:"requiresKey,omitempty" yaml:"requiresKey,omitempty"`
}

// Summary is the public projection served to clients.
type Summary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (m Model) Summary() Summary {
	return Summary{ID: m.ID, Name: m.Name, Description: m.Description}
}

type Source interface {
	List(ctx context.Context) ([]Model, error)
}

var builtin = []Model{
	{
		ID:          "@cf/meta/llama-3.1-8b-instruct",
		Name:        "Llama 3.1 8B Instruct",
		Description: "Fast general-purpose chat model",
		Provider:    "workers-ai",
	},
	{
		ID:          "@cf/meta/llama-3.3-70b-instruct-fp8-fast",
		Name:        "Llama 3.3 70B Instruct",
		Description: "Larger model for harder questions",
		Provider:    "workers-ai",
	},
	{
		ID:          "@cf/mistral/mistral-7b-instruct-v0.1",
		Name:        "Mistral 7B Instruct",
		Description: "Compact instruction-tuned model",
		Provider:    "workers-ai",
	},
}

// Builtin serves a fixed list.
type Builtin struct{}

func (Builtin) List(context.Context) ([]Model, error) {
	return append([]Model(nil), builtin...), nil
}

// DefaultRedisKey is the key RedisSource reads when none is given.
const DefaultRedisKey = "models"

// Getter is the slice of the Redis client the catalog needs.
type Getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisSource reads a JSON array of models from one key. A missing key
// falls back to the built-in list.
type RedisSource struct {
	client Getter
	key    string
}

func NewRedisSource(client Getter, key string) *RedisSource {
	if strings.TrimSpace(key) == "" {
		key = DefaultRedisKey
	}
	return &RedisSource{client: client, key: key}
}

func (s *RedisSource) List(ctx context.Context) ([]Model, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		log.Debug().Str("component", "catalog").Str("key", s.key).Msg("catalog key missing, using built-in models")
		return Builtin{}.List(ctx)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog key %s", s.key)
	}
	var models []Model
	if err := json.Unmarshal(raw, &models); err != nil {
		return nil, errors.Wrapf(err, "decode catalog key %s", s.key)
	}
	return models, nil
}

// FileSource reads a YAML (or JSON, which YAML accepts) list of models.
type FileSource struct {
	Path string
}

func (s FileSource) List(context.Context) ([]Model, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}
	var models []Model
	if err := yaml.Unmarshal(data, &models); err != nil {
		return nil, errors.Wrapf(err, "decode catalog file %s", s.Path)
	}
	return models, nil
}

// Summaries lists src and projects every model to its public fields.
func Summaries(ctx context.Context, src Source) ([]Summary, error) {
	models, err := src.List(ctx)
	if err != nil {
		return nil, err
	}
	valid := lo.Filter(models, func(m Model, _ int) bool { return strings.TrimSpace(m.ID) != "" })
	return lo.Map(valid, func(m Model, _ int) Summary { return m.Summary() }), nil
}

// NewHTTPHandler serves GET /api/models.
func NewHTTPHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		out, err := Summaries(req.Context(), src)
		if err != nil {
			log.Error().Err(err).Str("component", "catalog").Msg("list models")
			http.Error(w, "failed to list models", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}
