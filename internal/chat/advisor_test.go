package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"

	"github.com/strategos/advisor/internal/knowledge"
	"github.com/strategos/advisor/internal/llm"
	"github.com/strategos/advisor/internal/topic"
)

type fakeRetriever struct {
	chunks []knowledge.Chunk
}

func (f *fakeRetriever) Retrieve(string, int) []knowledge.Chunk { return f.chunks }

type fakeMetrics struct{ text string }

func (f *fakeMetrics) Assemble(context.Context) string { return f.text }

type fakeMemory struct{ text string }

func (f *fakeMemory) Build(context.Context, int64) string { return f.text }

type fakeTopics struct {
	nextID    int64
	createErr error
	recordErr error

	createdTitles []string
	recorded      []recordedExchange
}

type recordedExchange struct {
	topicID  int64
	question string
	response string
	tokens   int
}

func (f *fakeTopics) Create(_ context.Context, title string) (*topic.Topic, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.createdTitles = append(f.createdTitles, title)
	return &topic.Topic{ID: f.nextID, Title: title}, nil
}

func (f *fakeTopics) RecordExchange(_ context.Context, topicID int64, question, response string, tokens int) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, recordedExchange{topicID, question, response, tokens})
	return nil
}

type fakeGenerator struct {
	primaryDeltas []string
	primaryErr    error
	fallbackText  string
	fallbackErr   error
	single        bool

	streamCalls   int
	fallbackCalls int
	lastSystem    string
	lastMsgs      []*ai.Message
}

func (f *fakeGenerator) Backends() []llm.Backend {
	primary := llm.Backend{Rank: "primary", Provider: "gemini", Model: "gemini-2.5-flash"}
	if f.single {
		return []llm.Backend{primary}
	}
	return []llm.Backend{primary, {Rank: "fallback", Provider: "openai", Model: "gpt-4o-mini"}}
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, _ llm.Backend, system string, msgs []*ai.Message, cb func(context.Context, string) error) (string, error) {
	f.streamCalls++
	f.lastSystem = system
	f.lastMsgs = msgs
	if f.primaryErr != nil {
		return "", f.primaryErr
	}
	for _, d := range f.primaryDeltas {
		if err := cb(ctx, d); err != nil {
			return "", err
		}
	}
	return strings.Join(f.primaryDeltas, ""), nil
}

func (f *fakeGenerator) Generate(context.Context, llm.Backend, string, []*ai.Message) (string, error) {
	f.fallbackCalls++
	if f.fallbackErr != nil {
		return "", f.fallbackErr
	}
	return f.fallbackText, nil
}

func newTestAdvisor(topics *fakeTopics, gen *fakeGenerator) *Advisor {
	return NewAdvisor(
		&fakeRetriever{chunks: []knowledge.Chunk{{SourcePath: "docs/pricing.md", SectionTitle: "Plans", Content: "Annual plans reduce churn."}}},
		&fakeMetrics{text: "=== Business Metrics Snapshot ===\nUsers: 10 registered"},
		&fakeMemory{text: "## Current topic history\n[2026-08-30 09:00] Q: hi\nA: hello"},
		topics, gen, 4, nil)
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func TestRequestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"valid", Request{Question: "How is churn trending?"}, nil},
		{"empty", Request{Question: ""}, ErrEmptyQuestion},
		{"whitespace", Request{Question: "   \n\t"}, ErrEmptyQuestion},
		{"too long", Request{Question: strings.Repeat("q", maxQuestionLength+1)}, ErrQuestionTooLong},
		{"at limit", Request{Question: strings.Repeat("q", maxQuestionLength)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.req.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAnswerStreamsAndPersists(t *testing.T) {
	t.Parallel()

	topics := &fakeTopics{nextID: 5}
	gen := &fakeGenerator{primaryDeltas: []string{"Focus ", "on ", "retention."}}
	e, events := collect()

	newTestAdvisor(topics, gen).Answer(context.Background(), Request{Question: "What now?", TopicID: 9}, e)

	want := []EventType{EventTopic, EventChunk, EventChunk, EventChunk, EventDone}
	got := eventTypes(*events)
	if len(got) != len(want) {
		t.Fatalf("event sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event sequence = %v, want %v", got, want)
		}
	}
	if (*events)[0].TopicID != 9 {
		t.Errorf("topic event id = %d, want 9", (*events)[0].TopicID)
	}

	if len(topics.recorded) != 1 {
		t.Fatalf("recorded %d exchanges, want 1", len(topics.recorded))
	}
	rec := topics.recorded[0]
	if rec.response != "Focus on retention." {
		t.Errorf("persisted response = %q, want accumulated stream", rec.response)
	}
	if rec.topicID != 9 || rec.question != "What now?" {
		t.Errorf("persisted exchange = %+v", rec)
	}
	if rec.tokens <= 0 {
		t.Errorf("persisted tokens = %d, want > 0", rec.tokens)
	}

	// No topic was auto-created for an explicit topic id.
	if len(topics.createdTitles) != 0 {
		t.Errorf("created topics = %v, want none", topics.createdTitles)
	}
}

func TestAnswerAutoTopic(t *testing.T) {
	t.Parallel()

	question := "What should our Q3 campaign focus on given current churn signals?"
	wantTitle := string([]rune(question)[:autoTitleLength]) + "..."

	topics := &fakeTopics{nextID: 31}
	gen := &fakeGenerator{primaryDeltas: []string{"Retention first."}}
	e, events := collect()

	newTestAdvisor(topics, gen).Answer(context.Background(), Request{Question: question}, e)

	if len(topics.createdTitles) != 1 || topics.createdTitles[0] != wantTitle {
		t.Errorf("created titles = %v, want [%q]", topics.createdTitles, wantTitle)
	}
	if len(*events) == 0 || (*events)[0].Type != EventTopic || (*events)[0].TopicID != 31 {
		t.Errorf("first event = %+v, want topic with id 31", (*events)[0])
	}
	if len(topics.recorded) != 1 || topics.recorded[0].topicID != 31 {
		t.Errorf("exchange not persisted against the auto-created topic: %+v", topics.recorded)
	}
}

func TestAnswerTopicCreationFailure(t *testing.T) {
	t.Parallel()

	topics := &fakeTopics{createErr: errors.New("db down")}
	gen := &fakeGenerator{primaryDeltas: []string{"Answer."}}
	e, events := collect()

	newTestAdvisor(topics, gen).Answer(context.Background(), Request{Question: "hello there"}, e)

	// The request proceeds without a topic and is not persisted.
	last := (*events)[len(*events)-1]
	if last.Type != EventDone {
		t.Errorf("last event = %+v, want done", last)
	}
	if len(topics.recorded) != 0 {
		t.Errorf("recorded %d exchanges, want 0 without a topic", len(topics.recorded))
	}
}

func TestAnswerFallback(t *testing.T) {
	t.Parallel()

	topics := &fakeTopics{nextID: 1}
	gen := &fakeGenerator{
		primaryErr:   errors.New("quota exceeded"),
		fallbackText: "Fallback answer.",
	}
	e, events := collect()

	newTestAdvisor(topics, gen).Answer(context.Background(), Request{Question: "q?", TopicID: 3}, e)

	if gen.streamCalls != 1 || gen.fallbackCalls != 1 {
		t.Errorf("stream calls = %d, fallback calls = %d, want 1 and 1", gen.streamCalls, gen.fallbackCalls)
	}

	var chunks []string
	for _, ev := range *events {
		if ev.Type == EventChunk {
			chunks = append(chunks, ev.Text)
		}
	}
	if len(chunks) != 1 || chunks[0] != "Fallback answer." {
		t.Errorf("chunks = %v, want only the fallback text", chunks)
	}
	if (*events)[len(*events)-1].Type != EventDone {
		t.Errorf("last event = %+v, want done", (*events)[len(*events)-1])
	}
	if len(topics.recorded) != 1 || topics.recorded[0].response != "Fallback answer." {
		t.Errorf("persisted = %+v, want fallback answer", topics.recorded)
	}
}

func TestAnswerBothBackendsFail(t *testing.T) {
	t.Parallel()

	topics := &fakeTopics{nextID: 1}
	gen := &fakeGenerator{
		primaryErr:  errors.New("quota exceeded"),
		fallbackErr: errors.New("connection refused"),
	}
	e, events := collect()

	newTestAdvisor(topics, gen).Answer(context.Background(), Request{Question: "q?", TopicID: 3}, e)

	var errorCount, doneCount, chunkCount int
	for _, ev := range *events {
		switch ev.Type {
		case EventError:
			errorCount++
		case EventDone:
			doneCount++
		case EventChunk:
			chunkCount++
		}
	}
	if errorCount != 1 || doneCount != 0 || chunkCount != 0 {
		t.Errorf("events = %v, want exactly one error and nothing else after topic", eventTypes(*events))
	}
	if (*events)[len(*events)-1].Type != EventError {
		t.Errorf("last event = %+v, want error", (*events)[len(*events)-1])
	}
	if msg := (*events)[len(*events)-1].Message; strings.Contains(msg, "quota") || strings.Contains(msg, "refused") {
		t.Errorf("error message leaks backend details: %q", msg)
	}
	if gen.fallbackCalls != 1 {
		t.Errorf("fallback calls = %d, want exactly 1 (no retry loop)", gen.fallbackCalls)
	}
	if len(topics.recorded) != 0 {
		t.Errorf("recorded %d exchanges after double failure, want 0", len(topics.recorded))
	}
}

func TestAnswerDisconnectPersistsPartial(t *testing.T) {
	t.Parallel()

	topics := &fakeTopics{nextID: 1}
	gen := &fakeGenerator{primaryDeltas: []string{"Partial ", "answer ", "lost."}}

	// The connection drops after the topic event and the first chunk.
	var events []Event
	e := NewEmitter(func(ev Event) error {
		if len(events) >= 2 {
			return errors.New("write tcp: broken pipe")
		}
		events = append(events, ev)
		return nil
	})

	newTestAdvisor(topics, gen).Answer(context.Background(), Request{Question: "q?", TopicID: 7}, e)

	// A dead client is not a backend failure: no fallback call, no
	// further events.
	if gen.fallbackCalls != 0 {
		t.Errorf("fallback calls = %d, want 0 after a client disconnect", gen.fallbackCalls)
	}
	if got := eventTypes(events); len(got) != 2 || got[0] != EventTopic || got[1] != EventChunk {
		t.Errorf("delivered events = %v, want topic and one chunk", got)
	}

	// The accumulated partial answer is still persisted.
	if len(topics.recorded) != 1 {
		t.Fatalf("recorded %d exchanges after disconnect, want 1", len(topics.recorded))
	}
	if rec := topics.recorded[0]; rec.topicID != 7 || !strings.HasPrefix(rec.response, "Partial ") {
		t.Errorf("persisted exchange = %+v, want the partial accumulator", rec)
	}
}

func TestAnswerEmptyStreamPersistsApology(t *testing.T) {
	t.Parallel()

	topics := &fakeTopics{nextID: 1}
	gen := &fakeGenerator{primaryDeltas: []string{"", "  ", "\n"}}
	e, _ := collect()

	newTestAdvisor(topics, gen).Answer(context.Background(), Request{Question: "q?", TopicID: 2}, e)

	if len(topics.recorded) != 1 {
		t.Fatalf("recorded %d exchanges, want 1", len(topics.recorded))
	}
	if topics.recorded[0].response != fallbackAnswer {
		t.Errorf("persisted response = %q, want the fixed fallback answer", topics.recorded[0].response)
	}
}

func TestAnswerPersistFailureStillDone(t *testing.T) {
	t.Parallel()

	topics := &fakeTopics{nextID: 1, recordErr: errors.New("disk full")}
	gen := &fakeGenerator{primaryDeltas: []string{"Answer."}}
	e, events := collect()

	newTestAdvisor(topics, gen).Answer(context.Background(), Request{Question: "q?", TopicID: 2}, e)

	if (*events)[len(*events)-1].Type != EventDone {
		t.Errorf("last event = %+v, want done despite persistence failure", (*events)[len(*events)-1])
	}
}

func TestAnswerPromptComposition(t *testing.T) {
	t.Parallel()

	topics := &fakeTopics{nextID: 1}
	gen := &fakeGenerator{primaryDeltas: []string{"ok"}}
	e, _ := collect()

	history := []HistoryMessage{
		{Role: "user", Content: "older question"},
		{Role: "assistant", Content: "older answer"},
		{Role: "system", Content: "dropped role"},
		{Role: "user", Content: ""},
	}
	newTestAdvisor(topics, gen).Answer(context.Background(),
		Request{Question: "latest question", TopicID: 2, ConversationHistory: history}, e)

	sys := gen.lastSystem
	persona := strings.Index(sys, "business strategy advisor")
	know := strings.Index(sys, "# Knowledge base excerpts")
	metrics := strings.Index(sys, "=== Business Metrics Snapshot ===")
	mem := strings.Index(sys, "# Conversation memory")
	if persona == -1 || know == -1 || metrics == -1 || mem == -1 {
		t.Fatalf("system prompt missing sections:\n%s", sys)
	}
	if !(persona < know && know < metrics && metrics < mem) {
		t.Errorf("system prompt sections out of order:\n%s", sys)
	}

	// Filtered history plus the new user turn.
	if len(gen.lastMsgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(gen.lastMsgs))
	}
	if gen.lastMsgs[0].Role != ai.RoleUser || gen.lastMsgs[1].Role != ai.RoleModel {
		t.Errorf("history roles = %v, %v", gen.lastMsgs[0].Role, gen.lastMsgs[1].Role)
	}
	last := gen.lastMsgs[2]
	if last.Role != ai.RoleUser || last.Content[0].Text != "latest question" {
		t.Errorf("final message = %+v, want the new user turn", last)
	}
}

func TestBoundHistory(t *testing.T) {
	t.Parallel()

	var history []HistoryMessage
	for i := 0; i < 12; i++ {
		history = append(history, HistoryMessage{Role: "user", Content: strings.Repeat("x", i+1)})
	}

	got := boundHistory(history)
	if len(got) != historyTurns {
		t.Fatalf("boundHistory() kept %d turns, want %d", len(got), historyTurns)
	}
	// Keeps the most recent entries.
	if got[len(got)-1].Content != history[len(history)-1].Content {
		t.Error("boundHistory() dropped the newest turn")
	}
}

func TestAutoTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		question string
		want     string
	}{
		{"short", "Short question", "Short question"},
		{"exactly at limit", strings.Repeat("a", autoTitleLength), strings.Repeat("a", autoTitleLength)},
		{"truncated", strings.Repeat("b", autoTitleLength+10), strings.Repeat("b", autoTitleLength) + "..."},
		{"trims whitespace", "  padded  ", "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := autoTitle(tt.question); got != tt.want {
				t.Errorf("autoTitle(%q) = %q, want %q", tt.question, got, tt.want)
			}
		})
	}
}
