package chat

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// EventType is the wire tag of a Domain Event.
type EventType string

const (
	EventAdd            EventType = "add"
	EventUpdate         EventType = "update"
	EventAll            EventType = "all"
	EventSessionLoading EventType = "session_loading"
	EventSessionReady   EventType = "session_ready"
	EventSessionFailed  EventType = "session_failed"
)

// Event is the closed set of Domain Events. The unexported method keeps
// implementations inside this package.
type Event interface {
	Type() EventType
	isEvent()
}

// AddEvent carries a new (or re-sent) message plus dispatch options.
type AddEvent struct {
	Message
	Model  string
	UseRag bool
}

// UpdateEvent carries an edited message. It is stored and broadcast but never
// dispatched to a responder.
type UpdateEvent struct {
	Message
	Model  string
	UseRag bool
}

// AllEvent is the full ordered log, sent once to a connection when it joins.
type AllEvent struct {
	Messages []Message
}

type SessionLoadingEvent struct{}

type SessionReadyEvent struct {
	SessionID string
}

type SessionFailedEvent struct {
	Error string
}

func (AddEvent) Type() EventType            { return EventAdd }
func (UpdateEvent) Type() EventType         { return EventUpdate }
func (AllEvent) Type() EventType            { return EventAll }
func (SessionLoadingEvent) Type() EventType { return EventSessionLoading }
func (SessionReadyEvent) Type() EventType   { return EventSessionReady }
func (SessionFailedEvent) Type() EventType  { return EventSessionFailed }

func (AddEvent) isEvent()            {}
func (UpdateEvent) isEvent()         {}
func (AllEvent) isEvent()            {}
func (SessionLoadingEvent) isEvent() {}
func (SessionReadyEvent) isEvent()   {}
func (SessionFailedEvent) isEvent()  {}

type envelope struct {
	Type EventType `json:"type"`
}

type messageWire struct {
	Type EventType `json:"type"`
	Message
	Model  string `json:"model,omitempty"`
	UseRag bool   `json:"useRag,omitempty"`
}

type allWire struct {
	Type     EventType `json:"type"`
	Messages []Message `json:"messages"`
}

type sessionReadyWire struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
}

type sessionFailedWire struct {
	Type  EventType `json:"type"`
	Error string    `json:"error"`
}

// Encode serializes an event into its flat JSON wire form.
func Encode(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case AddEvent:
		return json.Marshal(messageWire{Type: EventAdd, Message: e.Message, Model: e.Model, UseRag: e.UseRag})
	case UpdateEvent:
		return json.Marshal(messageWire{Type: EventUpdate, Message: e.Message, Model: e.Model, UseRag: e.UseRag})
	case AllEvent:
		msgs := e.Messages
		if msgs == nil {
			msgs = []Message{}
		}
		return json.Marshal(allWire{Type: EventAll, Messages: msgs})
	case SessionLoadingEvent:
		return json.Marshal(envelope{Type: EventSessionLoading})
	case SessionReadyEvent:
		return json.Marshal(sessionReadyWire{Type: EventSessionReady, SessionID: e.SessionID})
	case SessionFailedEvent:
		return json.Marshal(sessionFailedWire{Type: EventSessionFailed, Error: e.Error})
	case nil:
		return nil, errors.New("encode: nil event")
	default:
		return nil, errors.Errorf("encode: unsupported event %T", ev)
	}
}

// Decode parses a wire payload. The tag is validated before the payload is
// interpreted; anything unknown is reported as ErrMalformedEvent.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrapf(ErrMalformedEvent, "decode envelope: %v", err)
	}

	switch env.Type {
	case EventAdd, EventUpdate:
		var w messageWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, errors.Wrapf(ErrMalformedEvent, "decode %s: %v", env.Type, err)
		}
		if strings.TrimSpace(w.ID) == "" {
			return nil, errors.Wrapf(ErrMalformedEvent, "%s event without id", env.Type)
		}
		if w.Role == "" {
			w.Role = RoleUser
		}
		if env.Type == EventUpdate {
			return UpdateEvent{Message: w.Message, Model: w.Model, UseRag: w.UseRag}, nil
		}
		return AddEvent{Message: w.Message, Model: w.Model, UseRag: w.UseRag}, nil
	case EventAll:
		var w allWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, errors.Wrapf(ErrMalformedEvent, "decode all: %v", err)
		}
		return AllEvent{Messages: w.Messages}, nil
	case EventSessionLoading:
		return SessionLoadingEvent{}, nil
	case EventSessionReady:
		var w sessionReadyWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, errors.Wrapf(ErrMalformedEvent, "decode session_ready: %v", err)
		}
		return SessionReadyEvent{SessionID: w.SessionID}, nil
	case EventSessionFailed:
		var w sessionFailedWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, errors.Wrapf(ErrMalformedEvent, "decode session_failed: %v", err)
		}
		return SessionFailedEvent{Error: w.Error}, nil
	case "":
		return nil, errors.Wrap(ErrMalformedEvent, "missing event type")
	default:
		return nil, errors.Wrapf(ErrMalformedEvent, "unknown event type %q", env.Type)
	}
}
