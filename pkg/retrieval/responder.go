package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roomchat/pkg/chat"
	"github.com/go-go-golems/roomchat/pkg/inference"
)

const (
	DefaultTimeout  = 30 * time.Second
	MinUsableChars  = 10
	MaxContextChars = 8000
)

const systemPreamble = "You are a helpful assistant answering questions about Cloudflare. " +
	"Answer using the documentation excerpts below. If they do not cover the question, say so.\n\n" +
	"Documentation:\n"

type Options struct {
	Timeout         time.Duration
	MinUsableChars  int
	MaxContextChars int
	DefaultModel    string
}

// Responder grounds an inference call in documentation search results.
type Responder struct {
	search  Searcher
	backend inference.Backend
	opts    Options
}

func NewResponder(search Searcher, backend inference.Backend, opts Options) *Responder {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MinUsableChars <= 0 {
		opts.MinUsableChars = MinUsableChars
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = MaxContextChars
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		opts.DefaultModel = inference.DefaultModel
	}
	return &Responder{search: search, backend: backend, opts: opts}
}

// Answer never fails: every error is turned into an explanatory reply.
func (r *Responder) Answer(ctx context.Context, sessions chat.SessionProvider, query, model string) string {
	text, err := r.answer(ctx, sessions, query, model)
	if err != nil {
		log.Warn().Err(err).Str("component", "retrieval").Msg("documentation answer failed")
		return FailureText(err)
	}
	return text
}

func (r *Responder) answer(ctx context.Context, sessions chat.SessionProvider, query, model string) (string, error) {
	if strings.TrimSpace(model) == "" {
		model = r.opts.DefaultModel
	}

	token, err := sessions.EnsureSession(ctx)
	if err != nil {
		if errors.Is(err, chat.ErrSessionUnavailable) {
			return "", err
		}
		return "", errors.Wrapf(chat.ErrSessionUnavailable, "%v", err)
	}
	if strings.TrimSpace(token) == "" {
		return "", errors.Wrap(chat.ErrSessionUnavailable, "no session token")
	}

	req := NewSearchRequest(query)
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	resp, err := r.search.Call(callCtx, token, req)
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()
	if err != nil {
		if timedOut {
			return "", errors.Wrapf(chat.ErrRetrievalTimeout, "no result within %s", r.opts.Timeout)
		}
		if errors.Is(err, chat.ErrBackend) || errors.Is(err, chat.ErrSessionUnavailable) {
			return "", err
		}
		return "", errors.Wrapf(chat.ErrBackend, "documentation search: %v", err)
	}
	if resp.Error != nil {
		return "", errors.Wrapf(chat.ErrBackend, "documentation search: rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}

	retrieved := strings.TrimSpace(resp.Text())
	if utf8.RuneCountInString(retrieved) < r.opts.MinUsableChars {
		return "", errors.Wrapf(chat.ErrEmptyRetrieval, "got %d characters", utf8.RuneCountInString(retrieved))
	}
	retrieved = truncateRunes(retrieved, r.opts.MaxContextChars)

	out, err := r.backend.Run(ctx, model, inference.Request{Messages: []inference.Message{
		{Role: "system", Content: systemPreamble + retrieved},
		{Role: "user", Content: query},
	}})
	if err != nil {
		if errors.Is(err, chat.ErrBackend) {
			return "", err
		}
		return "", errors.Wrapf(chat.ErrBackend, "synthesis: %v", err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return inference.NoResponseText, nil
	}
	return out.Text, nil
}

// FailureText is the user-facing reply for a failed documentation answer.
func FailureText(err error) string {
	return fmt.Sprintf(
		"I couldn't answer from the documentation: %s. Try turning off documentation search and asking again.",
		failureReason(err),
	)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, chat.ErrSessionUnavailable):
		return "no documentation session could be established"
	case errors.Is(err, chat.ErrRetrievalTimeout):
		return "the documentation search timed out"
	case errors.Is(err, chat.ErrEmptyRetrieval):
		return "the documentation search returned no usable results"
	case errors.Is(err, chat.ErrBackend):
		return "the documentation or AI service returned an error"
	default:
		return "an unexpected error occurred"
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
