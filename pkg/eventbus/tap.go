package eventbus

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/roomchat/pkg/chat"
	"github.com/go-go-golems/roomchat/pkg/metrics"
)

const (
	MetadataRoomID    = "room_id"
	MetadataEventType = "event_type"
)

// Tap forwards room events to the bus without ever blocking the room:
// events go into a bounded queue and are dropped when it is full.
type Tap struct {
	pub   message.Publisher
	topic string
	queue chan *message.Message
}

func NewTap(pub message.Publisher, topic string, size int) *Tap {
	if strings.TrimSpace(topic) == "" {
		topic = DefaultTopic
	}
	if size <= 0 {
		size = 1024
	}
	return &Tap{pub: pub, topic: topic, queue: make(chan *message.Message, size)}
}

func (t *Tap) Publish(roomID string, eventType chat.EventType, payload []byte) {
	if t == nil {
		return
	}
	msg := message.NewMessage(uuid.NewString(), append([]byte(nil), payload...))
	msg.Metadata.Set(MetadataRoomID, roomID)
	msg.Metadata.Set(MetadataEventType, string(eventType))
	select {
	case t.queue <- msg:
	default:
		metrics.TapDropped.Inc()
	}
}

// Run publishes queued events until ctx is done.
func (t *Tap) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-t.queue:
			if err := t.pub.Publish(t.topic, msg); err != nil {
				log.Warn().Err(err).Str("component", "eventbus").Str("topic", t.topic).Msg("publish room event")
			}
		}
	}
}

// Follow consumes the topic, logging and counting every event, until ctx
// is done or the subscription closes.
func Follow(ctx context.Context, sub message.Subscriber, topic string, handle func(roomID string, eventType chat.EventType, payload []byte)) error {
	if strings.TrimSpace(topic) == "" {
		topic = DefaultTopic
	}
	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", topic)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			roomID := msg.Metadata.Get(MetadataRoomID)
			eventType := chat.EventType(msg.Metadata.Get(MetadataEventType))
			metrics.TapEvents.WithLabelValues(string(eventType)).Inc()
			log.Debug().
				Str("component", "eventbus").
				Str("room_id", roomID).
				Str("event_type", string(eventType)).
				Int("bytes", len(msg.Payload)).
				Msg("room event")
			if handle != nil {
				handle(roomID, eventType, msg.Payload)
			}
			msg.Ack()
		}
	}
}
