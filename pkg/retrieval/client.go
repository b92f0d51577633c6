package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/roomchat/pkg/chat"
)

const DefaultBaseURL = "https://docs.mcp.cloudflare.com"

// Searcher performs one tool call against the documentation-search backend.
type Searcher interface {
	Call(ctx context.Context, sessionID string, req RPCRequest) (*RPCResponse, error)
}

// Client speaks the two-endpoint protocol of the search backend:
// GET {base}/sse?sessionId=... is the push channel,
// POST {base}/sse/message?sessionId=... accepts the JSON-RPC call with 202.
type Client struct {
	baseURL string
	http    *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// no client-level timeout: the push channel is long-lived and bounded by ctx
		http: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) streamURL(sessionID string) string {
	return c.baseURL + "/sse?sessionId=" + url.QueryEscape(sessionID)
}

func (c *Client) submitURL(sessionID string) string {
	return c.baseURL + "/sse/message?sessionId=" + url.QueryEscape(sessionID)
}

// Call opens the push channel and submits req concurrently, then waits for
// the first result event answering req. The channel is cancelled as soon as
// the result is captured. ctx bounds the whole exchange.
func (c *Client) Call(ctx context.Context, sessionID string, req RPCRequest) (*RPCResponse, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.Wrap(chat.ErrSessionUnavailable, "empty session id")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan *RPCResponse, 1)
	g, gctx := errgroup.WithContext(streamCtx)
	g.Go(func() error {
		resp, err := c.listen(gctx, sessionID, req.ID)
		if err != nil {
			return err
		}
		results <- resp
		// the submit may still be waiting on its response
		cancel()
		return nil
	})
	g.Go(func() error {
		return c.submit(gctx, sessionID, req)
	})

	err := g.Wait()
	select {
	case resp := <-results:
		return resp, nil
	default:
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err == nil {
		err = errors.Wrap(chat.ErrBackend, "no result captured")
	}
	return nil, err
}

func (c *Client) listen(ctx context.Context, sessionID string, id int64) (*RPCResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamURL(sessionID), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build push channel request")
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(chat.ErrBackend, "open push channel: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(chat.ErrBackend, "open push channel: status %d", resp.StatusCode)
	}

	reader := NewEventReader(resp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if err == io.EOF {
				return nil, errors.Wrap(chat.ErrBackend, "push channel closed before a result arrived")
			}
			return nil, errors.Wrapf(chat.ErrBackend, "read push channel: %v", err)
		}
		if ev.Type != DefaultEventType {
			log.Trace().Str("component", "retrieval").Str("event", ev.Type).Msg("skipping push event")
			continue
		}

		var rpc RPCResponse
		if err := json.Unmarshal([]byte(ev.Data), &rpc); err != nil {
			log.Debug().Err(err).Str("component", "retrieval").Msg("undecodable push message, skipping")
			continue
		}
		if !rpc.answers(id) {
			continue
		}
		return &rpc, nil
	}
}

func (c *Client) submit(ctx context.Context, sessionID string, req RPCRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "marshal tool call")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.submitURL(sessionID), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build submit request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return errors.Wrapf(chat.ErrBackend, "submit tool call: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	switch resp.StatusCode {
	case http.StatusAccepted, http.StatusOK:
		return nil
	default:
		return errors.Wrapf(chat.ErrBackend, "submit tool call: status %d", resp.StatusCode)
	}
}
