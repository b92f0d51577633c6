package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"
)

// SessionState tracks the retrieval session of a room.
type SessionState int

const (
	SessionUninitialized SessionState = iota
	SessionLoading
	SessionReady
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionUninitialized:
		return "uninitialized"
	case SessionLoading:
		return "loading"
	case SessionReady:
		return "ready"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionInitializer establishes the retrieval session token of a room.
type SessionInitializer interface {
	Initialize(ctx context.Context) (string, error)
}

type SessionInitializerFunc func(ctx context.Context) (string, error)

func (f SessionInitializerFunc) Initialize(ctx context.Context) (string, error) {
	return f(ctx)
}

// LocalSessionInitializer generates tokens locally: 16 lowercase hex chars.
type LocalSessionInitializer struct{}

func (LocalSessionInitializer) Initialize(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", errors.Wrap(err, "generate session token")
	}
	return hex.EncodeToString(b[:]), nil
}
