package retrieval

import (
	"bufio"
	"io"
	"strings"
)

// DefaultEventType is the type of an event-stream event without an "event:" field.
const DefaultEventType = "message"

// StreamEvent is one dispatched event-stream frame.
type StreamEvent struct {
	Type string
	Data string
	ID   string
}

// EventReader splits a text/event-stream body into events. Lines are
// accumulated until a blank line dispatches the event; comment lines and
// unknown fields are ignored. A frame cut off by EOF is discarded.
type EventReader struct {
	r *bufio.Reader
}

func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next blocks until a complete event is available. It returns io.EOF when the
// stream ends.
func (er *EventReader) Next() (StreamEvent, error) {
	var (
		evType  string
		id      string
		data    []string
		hasData bool
	)
	for {
		line, err := er.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return StreamEvent{}, err
		}
		atEOF := err == io.EOF
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if atEOF {
				return StreamEvent{}, io.EOF
			}
			if !hasData {
				evType = ""
				continue
			}
			if evType == "" {
				evType = DefaultEventType
			}
			return StreamEvent{Type: evType, Data: strings.Join(data, "\n"), ID: id}, nil
		}
		if atEOF {
			// unterminated frame
			return StreamEvent{}, io.EOF
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}
		switch field {
		case "event":
			evType = value
		case "data":
			data = append(data, value)
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				id = value
			}
		}
	}
}
