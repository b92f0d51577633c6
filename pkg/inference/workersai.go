package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roomchat/pkg/chat"
)

const DefaultWorkersAIBaseURL = "https://api.cloudflare.com/client/v4"

type WorkersAIConfig struct {
	BaseURL   string
	AccountID string
	APIToken  string
	Timeout   time.Duration
	RetryMax  int
}

// WorkersAI calls the Cloudflare Workers AI REST endpoint
// POST {base}/accounts/{account}/ai/run/{model}.
type WorkersAI struct {
	cfg    WorkersAIConfig
	client *retryablehttp.Client
}

type workersAIEnvelope struct {
	Success bool `json:"success"`
	Result  struct {
		Response string `json:"response"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func NewWorkersAI(cfg WorkersAIConfig) (*WorkersAI, error) {
	if strings.TrimSpace(cfg.AccountID) == "" {
		return nil, errors.New("workers ai: account id is empty")
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("workers ai: api token is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWorkersAIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.Logger = leveledLogger{component: "workersai"}

	return &WorkersAI{cfg: cfg, client: rc}, nil
}

func (w *WorkersAI) Run(ctx context.Context, model string, req Request) (Response, error) {
	if err := validateRequest(model, req); err != nil {
		return Response{}, err
	}

	body := req
	if len(body.Messages) > 0 {
		body.Prompt = ""
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, errors.Wrap(err, "workers ai: marshal request")
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/ai/run/%s",
		strings.TrimRight(w.cfg.BaseURL, "/"),
		url.PathEscape(w.cfg.AccountID),
		model,
	)
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, errors.Wrap(err, "workers ai: build request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+w.cfg.APIToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return Response{}, errors.Wrapf(chat.ErrBackend, "workers ai: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Response{}, errors.Wrapf(chat.ErrBackend, "workers ai: read body: %v", err)
	}

	var env workersAIEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Response{}, errors.Wrapf(chat.ErrBackend, "workers ai: status %d, undecodable body: %v", resp.StatusCode, err)
	}
	if resp.StatusCode/100 != 2 || !env.Success {
		msg := http.StatusText(resp.StatusCode)
		if len(env.Errors) > 0 {
			msg = env.Errors[0].Message
		}
		return Response{}, errors.Wrapf(chat.ErrBackend, "workers ai: status %d: %s", resp.StatusCode, msg)
	}
	return Response{Text: env.Result.Response}, nil
}

// leveledLogger routes retryablehttp diagnostics into zerolog.
type leveledLogger struct {
	component string
}

func (l leveledLogger) Error(msg string, kv ...interface{}) {
	log.Error().Str("component", l.component).Fields(kv).Msg(msg)
}

func (l leveledLogger) Info(msg string, kv ...interface{}) {
	log.Debug().Str("component", l.component).Fields(kv).Msg(msg)
}

func (l leveledLogger) Debug(msg string, kv ...interface{}) {
	log.Trace().Str("component", l.component).Fields(kv).Msg(msg)
}

func (l leveledLogger) Warn(msg string, kv ...interface{}) {
	log.Warn().Str("component", l.component).Fields(kv).Msg(msg)
}
