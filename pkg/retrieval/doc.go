// Package retrieval answers questions from an external documentation-search
// tool. A query is submitted over a request/response call while the result
// arrives asynchronously on a server-push event stream; the retrieved text is
// then handed to an inference backend as grounding context.
package retrieval
