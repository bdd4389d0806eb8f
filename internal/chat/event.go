package chat

import "errors"

// EventType tags one stream event.
type EventType string

// Stream event types, in emission order: at most one topic, zero or
// more chunks, then exactly one of done or error.
const (
	EventTopic EventType = "topic"
	EventChunk EventType = "chunk"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one element of the response stream. Exactly the fields for
// its type are set.
type Event struct {
	Type    EventType `json:"type"`
	TopicID int64     `json:"topicId,omitempty"`
	Text    string    `json:"text,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ErrEventOrder means an emission would violate the stream contract.
var ErrEventOrder = errors.New("chat: event emitted out of order")

// SendFunc delivers one event to the caller, typically over SSE.
type SendFunc func(Event) error

// Emitter enforces the stream contract at the type level instead of
// by convention: a topic event may only come first, chunks may not
// follow a terminal event, and exactly one terminal event is allowed.
type Emitter struct {
	send     func(Event) error
	started  bool
	terminal bool
}

// NewEmitter wraps a send function with ordering enforcement.
func NewEmitter(send SendFunc) *Emitter {
	return &Emitter{send: send}
}

// Topic emits the topic association. Must be the first event.
func (e *Emitter) Topic(topicID int64) error {
	if e.started || e.terminal {
		return ErrEventOrder
	}
	e.started = true
	return e.send(Event{Type: EventTopic, TopicID: topicID})
}

// Chunk emits one incremental text delta.
func (e *Emitter) Chunk(text string) error {
	if e.terminal {
		return ErrEventOrder
	}
	e.started = true
	return e.send(Event{Type: EventChunk, Text: text})
}

// Done emits the success terminal event. Nothing may follow.
func (e *Emitter) Done(topicID int64) error {
	if e.terminal {
		return ErrEventOrder
	}
	e.terminal = true
	return e.send(Event{Type: EventDone, TopicID: topicID})
}

// Error emits the failure terminal event. Nothing may follow.
func (e *Emitter) Error(message string) error {
	if e.terminal {
		return ErrEventOrder
	}
	e.terminal = true
	return e.send(Event{Type: EventError, Message: message})
}
