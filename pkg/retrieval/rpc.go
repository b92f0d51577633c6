package retrieval

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	jsonRPCVersion = "2.0"
	toolCallMethod = "tools/call"
	SearchToolName = "search_cloudflare_documentation"
)

// RPCRequest is the JSON-RPC tool call submitted to the search endpoint.
type RPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int64          `json:"id"`
	Method  string         `json:"method"`
	Params  ToolCallParams `json:"params"`
}

type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments SearchArguments `json:"arguments"`
}

type SearchArguments struct {
	Query string `json:"query"`
}

// RPCResponse is the result delivered on the push channel.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  *ToolResult     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type ToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var lastRequestID atomic.Int64

// nextRequestID is a millisecond timestamp, bumped when two requests land in
// the same millisecond so ids stay strictly increasing.
func nextRequestID() int64 {
	for {
		now := time.Now().UnixMilli()
		last := lastRequestID.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if lastRequestID.CompareAndSwap(last, next) {
			return next
		}
	}
}

// NewSearchRequest builds a documentation-search tool call for query.
func NewSearchRequest(query string) RPCRequest {
	return RPCRequest{
		JSONRPC: jsonRPCVersion,
		ID:      nextRequestID(),
		Method:  toolCallMethod,
		Params: ToolCallParams{
			Name:      SearchToolName,
			Arguments: SearchArguments{Query: query},
		},
	}
}

// answers reports whether resp is the reply to the request with id.
// Responses without an id are accepted.
func (resp *RPCResponse) answers(id int64) bool {
	if resp == nil || (resp.Result == nil && resp.Error == nil) {
		return false
	}
	raw := strings.Trim(strings.TrimSpace(string(resp.ID)), `"`)
	if raw == "" || raw == "null" {
		return true
	}
	return raw == strconv.FormatInt(id, 10)
}

// Text joins the text items of a tool result with blank lines.
func (resp *RPCResponse) Text() string {
	if resp == nil || resp.Result == nil {
		return ""
	}
	var parts []string
	for _, item := range resp.Result.Content {
		if item.Type == "text" && strings.TrimSpace(item.Text) != "" {
			parts = append(parts, item.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
