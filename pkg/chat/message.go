package chat

import "context"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsConversational reports whether messages with this role are fed to an
// inference backend as conversation history.
func (r Role) IsConversational() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single chat entry. ID is unique within a room's log.
type Message struct {
	ID      string `json:"id"`
	User    string `json:"user"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Turn is a (role, content) pair handed to an inference backend.
type Turn struct {
	Role    Role
	Content string
}

// SessionProvider hands out the retrieval session token of a room,
// establishing one first if the room has none.
type SessionProvider interface {
	EnsureSession(ctx context.Context) (string, error)
}
