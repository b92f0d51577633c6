package webchat

import (
	"github.com/samber/lo"

	"github.com/go-go-golems/roomchat/pkg/chat"
)

// MessageLog is a room's ordered message history. It is owned by the room
// actor and is not safe for concurrent use.
type MessageLog struct {
	order []string
	byID  map[string]chat.Message
}

func NewMessageLog() *MessageLog {
	return &MessageLog{byID: map[string]chat.Message{}}
}

// Upsert appends msg, or replaces the message with the same id in place.
// It reports whether the message was new.
func (l *MessageLog) Upsert(msg chat.Message) bool {
	_, exists := l.byID[msg.ID]
	l.byID[msg.ID] = msg
	if !exists {
		l.order = append(l.order, msg.ID)
	}
	return !exists
}

// Snapshot returns a copy of all messages in insertion order.
func (l *MessageLog) Snapshot() []chat.Message {
	out := make([]chat.Message, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

// HistoryAsConversation returns every user and assistant message as a turn,
// in log order, without windowing.
func (l *MessageLog) HistoryAsConversation() []chat.Turn {
	msgs := lo.Filter(l.Snapshot(), func(m chat.Message, _ int) bool {
		return m.Role.IsConversational()
	})
	return lo.Map(msgs, func(m chat.Message, _ int) chat.Turn {
		return chat.Turn{Role: m.Role, Content: m.Content}
	})
}

func (l *MessageLog) Len() int {
	return len(l.order)
}
