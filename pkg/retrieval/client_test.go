package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/roomchat/pkg/chat"
)

// fakeDocsServer is a minimal two-endpoint search backend. Submitted calls are
// answered on the open push channel of the same session.
type fakeDocsServer struct {
	mu       sync.Mutex
	streams  map[string]chan string
	answer   func(RPCRequest) string
	submitSt int
	streamSt int
	// holdSubmit answers on the push channel but never completes the POST
	holdSubmit bool
	seen     []RPCRequest
}

func newFakeDocsServer(answer func(RPCRequest) string) *fakeDocsServer {
	return &fakeDocsServer{
		streams:  map[string]chan string{},
		answer:   answer,
		submitSt: http.StatusAccepted,
		streamSt: http.StatusOK,
	}
}

func (f *fakeDocsServer) stream(session string) chan string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.streams[session]
	if !ok {
		ch = make(chan string, 8)
		f.streams[session] = ch
	}
	return ch
}

func (f *fakeDocsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("sessionId")
	switch r.URL.Path {
	case "/sse":
		if f.streamSt != http.StatusOK {
			w.WriteHeader(f.streamSt)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		_, _ = fmt.Fprintf(w, "event: endpoint\ndata: /sse/message?sessionId=%s\n\n", session)
		flusher.Flush()
		ch := f.stream(session)
		for {
			select {
			case <-r.Context().Done():
				return
			case frame := <-ch:
				_, _ = fmt.Fprint(w, frame)
				flusher.Flush()
			}
		}
	case "/sse/message":
		var req RPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.seen = append(f.seen, req)
		f.mu.Unlock()
		if f.holdSubmit {
			f.stream(session) <- f.answer(req)
			<-r.Context().Done()
			return
		}
		w.WriteHeader(f.submitSt)
		if f.submitSt == http.StatusAccepted && f.answer != nil {
			if frame := f.answer(req); frame != "" {
				f.stream(session) <- frame
			}
		}
	default:
		http.NotFound(w, r)
	}
}

func resultFrame(id int64, texts ...string) string {
	items := make([]ContentItem, 0, len(texts))
	for _, t := range texts {
		items = append(items, ContentItem{Type: "text", Text: t})
	}
	raw, _ := json.Marshal(RPCResponse{
		JSONRPC: "2.0",
		ID:      json.RawMessage(fmt.Sprintf("%d", id)),
		Result:  &ToolResult{Content: items},
	})
	return "event: message\ndata: " + string(raw) + "\n\n"
}

func TestClientCallReturnsMatchingResult(t *testing.T) {
	fake := newFakeDocsServer(func(req RPCRequest) string {
		// an unrelated reply first, then the real one
		return resultFrame(req.ID+1000, "other") + resultFrame(req.ID, "Workers run on V8 isolates.", "They start fast.")
	})
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := NewClient(srv.URL)
	req := NewSearchRequest("what are workers")
	resp, err := c.Call(context.Background(), "sess1", req)
	require.NoError(t, err)
	require.Equal(t, "Workers run on V8 isolates.\n\nThey start fast.", resp.Text())

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.seen, 1)
	require.Equal(t, SearchToolName, fake.seen[0].Params.Name)
	require.Equal(t, "what are workers", fake.seen[0].Params.Arguments.Query)
	require.Equal(t, "tools/call", fake.seen[0].Method)
}

func TestClientCallSubmitRejected(t *testing.T) {
	fake := newFakeDocsServer(nil)
	fake.submitSt = http.StatusInternalServerError
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := NewClient(srv.URL).Call(context.Background(), "sess1", NewSearchRequest("q"))
	require.ErrorIs(t, err, chat.ErrBackend)
}

func TestClientCallStreamRejected(t *testing.T) {
	fake := newFakeDocsServer(nil)
	fake.streamSt = http.StatusNotFound
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := NewClient(srv.URL).Call(context.Background(), "sess1", NewSearchRequest("q"))
	require.ErrorIs(t, err, chat.ErrBackend)
}

func TestClientCallHonoursContextDeadline(t *testing.T) {
	fake := newFakeDocsServer(func(RPCRequest) string { return "" })
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := NewClient(srv.URL).Call(ctx, "sess1", NewSearchRequest("q"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestNextRequestIDIsStrictlyIncreasing(t *testing.T) {
	prev := nextRequestID()
	for i := 0; i < 100; i++ {
		id := nextRequestID()
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestResponseAnswers(t *testing.T) {
	withID := RPCResponse{ID: json.RawMessage("42"), Result: &ToolResult{}}
	require.True(t, withID.answers(42))
	require.False(t, withID.answers(43))

	noID := RPCResponse{Error: &RPCError{Code: -1, Message: "x"}}
	require.True(t, noID.answers(1))

	empty := RPCResponse{ID: json.RawMessage("1")}
	require.False(t, empty.answers(1))
}

func TestClientCallReturnsResultBeforeSubmitCompletes(t *testing.T) {
	fake := newFakeDocsServer(func(req RPCRequest) string {
		return resultFrame(req.ID, "Durable Objects hold state.")
	})
	fake.holdSubmit = true
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewClient(srv.URL)
	resp, err := c.Call(ctx, "sess-slow-submit", NewSearchRequest("durable objects"))
	require.NoError(t, err)
	require.Equal(t, "Durable Objects hold state.", resp.Text())
	require.NoError(t, ctx.Err())
}
