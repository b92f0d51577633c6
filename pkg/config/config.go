// Package config binds command-line flags, ROOMCHAT_* environment variables
// and an optional YAML file into Settings.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "ROOMCHAT"

type Settings struct {
	Addr             string        `mapstructure:"addr"`
	DefaultRoom      string        `mapstructure:"default-room"`
	RoomIdleGrace    time.Duration `mapstructure:"room-idle-grace"`
	EvictionInterval time.Duration `mapstructure:"eviction-interval"`
	SendBuffer       int           `mapstructure:"send-buffer"`
	WriteTimeout     time.Duration `mapstructure:"write-timeout"`
	PingInterval     time.Duration `mapstructure:"ping-interval"`

	InferenceBackend   string `mapstructure:"inference-backend"`
	DefaultModel       string `mapstructure:"default-model"`
	WorkersAIAccountID string `mapstructure:"workersai-account-id"`
	WorkersAIAPIToken  string `mapstructure:"workersai-api-token"`
	WorkersAIBaseURL   string `mapstructure:"workersai-base-url"`
	OpenAIAPIKey       string `mapstructure:"openai-api-key"`
	OpenAIBaseURL      string `mapstructure:"openai-base-url"`
	GeppettoAPIType    string `mapstructure:"geppetto-api-type"`

	DocsBaseURL string        `mapstructure:"docs-base-url"`
	DocsTimeout time.Duration `mapstructure:"docs-timeout"`

	CatalogSource   string `mapstructure:"catalog-source"`
	CatalogFile     string `mapstructure:"catalog-file"`
	RedisAddr       string `mapstructure:"redis-addr"`
	CatalogRedisKey string `mapstructure:"catalog-redis-key"`

	EventbusRedis bool   `mapstructure:"eventbus-redis"`
	EventbusTopic string `mapstructure:"eventbus-topic"`

	LogLevel   string `mapstructure:"log-level"`
	LogFormat  string `mapstructure:"log-format"`
	WithCaller bool   `mapstructure:"with-caller"`
}

// AddServeFlags registers the server flags with their defaults.
func AddServeFlags(fs *pflag.FlagSet) {
	fs.String("addr", ":8787", "HTTP listen address")
	fs.String("default-room", "default", "Room used when the websocket URL has no room parameter")
	fs.Duration("room-idle-grace", 30*time.Second, "How long an empty room is kept before disposal")
	fs.Duration("eviction-interval", time.Minute, "Interval of the idle room sweep")
	fs.Int("send-buffer", 64, "Per-connection outbound queue length")
	fs.Duration("write-timeout", 10*time.Second, "Websocket write deadline")
	fs.Duration("ping-interval", 30*time.Second, "Websocket keepalive ping interval (0 disables)")

	AddInferenceFlags(fs)

	fs.String("docs-base-url", "https://docs.mcp.cloudflare.com", "Documentation search backend base URL")
	fs.Duration("docs-timeout", 30*time.Second, "Overall documentation search timeout")

	AddCatalogFlags(fs)

	fs.Bool("eventbus-redis", false, "Publish room activity to Redis Streams instead of in memory")
	fs.String("eventbus-topic", "roomchat.events", "Event bus topic for room activity")
}

func AddInferenceFlags(fs *pflag.FlagSet) {
	fs.String("inference-backend", "echo", "Inference backend: echo, workersai, openai or geppetto")
	fs.String("default-model", "@cf/meta/llama-3.1-8b-instruct", "Model used when a message does not select one")
	fs.String("workersai-account-id", "", "Workers AI account id")
	fs.String("workersai-api-token", "", "Workers AI API token")
	fs.String("workersai-base-url", "", "Workers AI API base URL")
	fs.String("openai-api-key", "", "OpenAI-compatible API key")
	fs.String("openai-base-url", "", "OpenAI-compatible API base URL")
	fs.String("geppetto-api-type", "openai", "Provider api type for the geppetto backend; uses the openai key and base URL")
}

func AddCatalogFlags(fs *pflag.FlagSet) {
	fs.String("catalog-source", "builtin", "Model catalog source: builtin, redis or file")
	fs.String("catalog-file", "", "Model catalog YAML/JSON file")
	fs.String("redis-addr", "localhost:6379", "Redis address host:port")
	fs.String("catalog-redis-key", "models", "Redis key holding the model catalog")
}

func AddLoggingFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	fs.String("log-format", "console", "Log format: console or json")
	fs.Bool("with-caller", false, "Include caller in log lines")
	fs.String("config", "", "Optional YAML config file")
}

// NewViper returns a viper instance reading ROOMCHAT_* variables, with
// dashes in keys mapped to underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load binds fs, reads the optional config file and decodes Settings.
func Load(v *viper.Viper, fs *pflag.FlagSet) (*Settings, error) {
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}
	if path := strings.TrimSpace(v.GetString("config")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}
	return s, nil
}

// Validate rejects settings the server cannot run with.
func (s *Settings) Validate() error {
	switch s.InferenceBackend {
	case "", "echo", "openai", "geppetto":
	case "workersai":
		if strings.TrimSpace(s.WorkersAIAccountID) == "" || strings.TrimSpace(s.WorkersAIAPIToken) == "" {
			return errors.New("workersai backend needs workersai-account-id and workersai-api-token")
		}
	default:
		return errors.Errorf("unknown inference-backend %q", s.InferenceBackend)
	}

	switch s.CatalogSource {
	case "", "builtin", "redis":
	case "file":
		if strings.TrimSpace(s.CatalogFile) == "" {
			return errors.New("file catalog needs catalog-file")
		}
	default:
		return errors.Errorf("unknown catalog-source %q", s.CatalogSource)
	}

	if s.SendBuffer <= 0 {
		return errors.Errorf("send-buffer must be positive, got %d", s.SendBuffer)
	}
	if s.WriteTimeout < 0 || s.PingInterval < 0 || s.RoomIdleGrace < 0 || s.EvictionInterval < 0 {
		return errors.New("durations must not be negative")
	}
	if s.DocsTimeout <= 0 {
		return errors.New("docs-timeout must be positive")
	}
	return nil
}
