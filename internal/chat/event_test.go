package chat

import (
	"errors"
	"testing"
)

// collect returns an emitter writing into the returned slice.
func collect() (*Emitter, *[]Event) {
	var events []Event
	e := NewEmitter(func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	return e, &events
}

func TestEmitterHappyOrder(t *testing.T) {
	t.Parallel()

	e, events := collect()
	if err := e.Topic(7); err != nil {
		t.Fatalf("Topic() error: %v", err)
	}
	if err := e.Chunk("hello"); err != nil {
		t.Fatalf("Chunk() error: %v", err)
	}
	if err := e.Done(7); err != nil {
		t.Fatalf("Done() error: %v", err)
	}

	want := []EventType{EventTopic, EventChunk, EventDone}
	if len(*events) != len(want) {
		t.Fatalf("got %d events, want %d", len(*events), len(want))
	}
	for i, typ := range want {
		if (*events)[i].Type != typ {
			t.Errorf("event %d type = %q, want %q", i, (*events)[i].Type, typ)
		}
	}
}

func TestEmitterRejectsLateTopic(t *testing.T) {
	t.Parallel()

	e, _ := collect()
	_ = e.Chunk("text")
	if err := e.Topic(1); !errors.Is(err, ErrEventOrder) {
		t.Errorf("Topic() after Chunk() = %v, want ErrEventOrder", err)
	}
}

func TestEmitterRejectsAfterTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		terminal func(e *Emitter) error
	}{
		{"done", func(e *Emitter) error { return e.Done(1) }},
		{"error", func(e *Emitter) error { return e.Error("boom") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, events := collect()
			_ = e.Topic(1)
			if err := tt.terminal(e); err != nil {
				t.Fatalf("terminal emission error: %v", err)
			}

			if err := e.Chunk("late"); !errors.Is(err, ErrEventOrder) {
				t.Errorf("Chunk() after terminal = %v, want ErrEventOrder", err)
			}
			if err := e.Done(1); !errors.Is(err, ErrEventOrder) {
				t.Errorf("Done() after terminal = %v, want ErrEventOrder", err)
			}
			if err := e.Error("again"); !errors.Is(err, ErrEventOrder) {
				t.Errorf("Error() after terminal = %v, want ErrEventOrder", err)
			}
			if len(*events) != 2 {
				t.Errorf("got %d events, want 2 (rejected emissions must not send)", len(*events))
			}
		})
	}
}
