package chat

import "github.com/pkg/errors"

var (
	// ErrSessionUnavailable means no retrieval session token could be established.
	ErrSessionUnavailable = errors.New("retrieval session unavailable")
	// ErrRetrievalTimeout means the documentation search did not answer in time.
	ErrRetrievalTimeout = errors.New("retrieval timed out")
	// ErrEmptyRetrieval means the documentation search returned no usable text.
	ErrEmptyRetrieval = errors.New("retrieval returned no usable text")
	// ErrBackend wraps transport and application errors from inference or search backends.
	ErrBackend = errors.New("backend error")
	// ErrMalformedEvent is returned by Decode for payloads that are not a known Domain Event.
	ErrMalformedEvent = errors.New("malformed event")
)
