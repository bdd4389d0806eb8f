// Package chat orchestrates one conversation turn: context assembly
// from knowledge, metrics, and memory, a streamed model call with a
// single fallback, and best-effort persistence of the exchange.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/strategos/advisor/internal/knowledge"
	"github.com/strategos/advisor/internal/llm"
	"github.com/strategos/advisor/internal/log"
	"github.com/strategos/advisor/internal/topic"
)

const (
	// maxQuestionLength bounds an inbound question.
	maxQuestionLength = 5000

	// autoTitleLength is the question prefix used to title an
	// auto-created topic.
	autoTitleLength = 60

	// historyTurns caps caller-supplied conversation history.
	historyTurns = 8

	// fallbackAnswer replaces an empty model response so a caller is
	// never shown a blank answer.
	fallbackAnswer = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

	// backendErrorMessage is the generic terminal error; backend
	// details never leak to the caller.
	backendErrorMessage = "The assistant is temporarily unavailable. Please try again."
)

// systemPersona is the standing instruction prepended to every
// request before the per-request context sections.
const systemPersona = `You are a seasoned business strategy advisor for a subscription content product.
Answer using the knowledge excerpts, business metrics, and conversation memory provided.
Be specific and actionable; cite numbers from the metrics when relevant.
If the provided context does not cover the question, say so instead of inventing figures.`

// Validation errors, surfaced to the caller before any stream event.
var (
	ErrEmptyQuestion   = errors.New("chat: question is required")
	ErrQuestionTooLong = fmt.Errorf("chat: question exceeds %d characters", maxQuestionLength)
)

// errStreamClosed marks an event delivery failure, meaning the caller
// has disconnected. Generation stops, but the text accumulated so far
// is still returned so it can be persisted.
var errStreamClosed = errors.New("chat: event stream closed")

// HistoryMessage is one caller-supplied prior turn.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one inbound conversation turn.
type Request struct {
	Question            string           `json:"question"`
	TopicID             int64            `json:"topicId,omitempty"`
	ConversationHistory []HistoryMessage `json:"conversationHistory,omitempty"`
	ImageData           string           `json:"imageData,omitempty"`
}

// Retriever selects relevant knowledge chunks for a query.
type Retriever interface {
	Retrieve(query string, topK int) []knowledge.Chunk
}

// MetricsAssembler renders the business-metrics context block.
type MetricsAssembler interface {
	Assemble(ctx context.Context) string
}

// MemoryBuilder renders conversation memory for a topic.
type MemoryBuilder interface {
	Build(ctx context.Context, topicID int64) string
}

// TopicStore persists topics and completed exchanges.
type TopicStore interface {
	Create(ctx context.Context, title string) (*topic.Topic, error)
	RecordExchange(ctx context.Context, topicID int64, question, response string, tokensUsed int) error
}

// Generator runs model calls against the ranked backend list.
// *llm.Client satisfies it.
type Generator interface {
	Backends() []llm.Backend
	GenerateStream(ctx context.Context, b llm.Backend, system string, msgs []*ai.Message, cb func(context.Context, string) error) (string, error)
	Generate(ctx context.Context, b llm.Backend, system string, msgs []*ai.Message) (string, error)
}

// Advisor drives one conversation turn end to end.
type Advisor struct {
	retriever Retriever
	metrics   MetricsAssembler
	memory    MemoryBuilder
	topics    TopicStore
	generator Generator
	topK      int
	logger    log.Logger
}

// NewAdvisor wires the orchestrator. topK bounds knowledge retrieval.
func NewAdvisor(retriever Retriever, metrics MetricsAssembler, memory MemoryBuilder, topics TopicStore, generator Generator, topK int, logger log.Logger) *Advisor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Advisor{
		retriever: retriever,
		metrics:   metrics,
		memory:    memory,
		topics:    topics,
		generator: generator,
		topK:      topK,
		logger:    logger,
	}
}

// Validate checks a request before any context assembly or model
// call. Rejections surface as plain errors, not stream events.
func (r Request) Validate() error {
	q := strings.TrimSpace(r.Question)
	if q == "" {
		return ErrEmptyQuestion
	}
	if len([]rune(r.Question)) > maxQuestionLength {
		return ErrQuestionTooLong
	}
	return nil
}

// Answer processes one validated request, emitting events through e.
// Context-source failures degrade the prompt instead of failing the
// request; only a double backend failure produces a terminal error
// event. Persistence failures are logged and never surface.
func (a *Advisor) Answer(ctx context.Context, req Request, e *Emitter) {
	topicID := req.TopicID
	if topicID == 0 {
		if t, err := a.topics.Create(ctx, autoTitle(req.Question)); err != nil {
			a.logger.Warn("auto-creating topic", "error", err)
		} else {
			topicID = t.ID
		}
	}

	// Topic association goes out before any model output so the
	// caller can attach the stream even when creation was implicit.
	if err := e.Topic(topicID); err != nil {
		a.logger.Warn("emitting topic event", "error", err)
		return
	}

	system, msgs := a.buildPrompt(ctx, req, topicID)

	answer, err := a.generate(ctx, system, msgs, e)
	if errors.Is(err, errStreamClosed) {
		// The caller is gone, so no further events can be delivered,
		// but the partial answer is kept for conversation continuity.
		if strings.TrimSpace(answer) != "" {
			a.persist(ctx, topicID, req.Question, answer)
		}
		return
	}
	if err != nil {
		a.emitError(e)
		return
	}
	if strings.TrimSpace(answer) == "" {
		a.logger.Warn("model returned empty answer", "topic_id", topicID)
		answer = fallbackAnswer
	}

	a.persist(ctx, topicID, req.Question, answer)

	if err := e.Done(topicID); err != nil {
		a.logger.Warn("emitting done event", "error", err)
	}
}

// buildPrompt assembles the system text and message sequence. Section
// order is fixed: persona, knowledge excerpts, metrics, memory, then
// bounded caller history and the new user turn.
func (a *Advisor) buildPrompt(ctx context.Context, req Request, topicID int64) (string, []*ai.Message) {
	var system strings.Builder
	system.WriteString(systemPersona)

	if excerpts := knowledge.FormatChunks(a.retriever.Retrieve(req.Question, a.topK)); excerpts != "" {
		system.WriteString("\n\n# Knowledge base excerpts\n")
		system.WriteString(excerpts)
	}

	system.WriteString("\n\n")
	system.WriteString(a.metrics.Assemble(ctx))

	if mem := a.memory.Build(ctx, topicID); mem != "" {
		system.WriteString("\n\n# Conversation memory\n")
		system.WriteString(mem)
	}

	var msgs []*ai.Message
	for _, h := range boundHistory(req.ConversationHistory) {
		switch h.Role {
		case "user":
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(h.Content)))
		case "assistant":
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(h.Content)))
		}
	}

	parts := []*ai.Part{ai.NewTextPart(req.Question)}
	if req.ImageData != "" {
		parts = append(parts, ai.NewMediaPart("", req.ImageData))
	}
	msgs = append(msgs, ai.NewUserMessage(parts...))

	return system.String(), msgs
}

// generate streams from the primary backend, falling back exactly
// once to the next backend with a non-streaming call. A delivery
// failure is not a backend failure: it returns errStreamClosed along
// with the accumulated text instead of triggering the fallback. The
// emit error is tracked outside the callback because the backend
// client may wrap it beyond errors.Is reach.
func (a *Advisor) generate(ctx context.Context, system string, msgs []*ai.Message, e *Emitter) (string, error) {
	backends := a.generator.Backends()

	var acc strings.Builder
	var emitErr error
	_, err := a.generator.GenerateStream(ctx, backends[0], system, msgs, func(ctx context.Context, text string) error {
		acc.WriteString(text)
		if err := e.Chunk(text); err != nil {
			emitErr = err
			return err
		}
		return nil
	})
	if emitErr != nil {
		a.logger.Warn("client disconnected mid-stream", "error", emitErr)
		return acc.String(), errStreamClosed
	}
	if err == nil {
		return acc.String(), nil
	}
	a.logger.Warn("primary backend failed", "model", backends[0].ModelName(), "error", err)

	if len(backends) < 2 {
		return "", err
	}

	text, err := a.generator.Generate(ctx, backends[1], system, msgs)
	if err != nil {
		a.logger.Error("fallback backend failed", "model", backends[1].ModelName(), "error", err)
		return "", err
	}
	if text != "" {
		if err := e.Chunk(text); err != nil {
			a.logger.Warn("emitting fallback chunk", "error", err)
			return text, errStreamClosed
		}
	}
	return text, nil
}

func (a *Advisor) emitError(e *Emitter) {
	if err := e.Error(backendErrorMessage); err != nil {
		a.logger.Warn("emitting error event", "error", err)
	}
}

// persist records the completed exchange. The detached context keeps
// the write alive when the caller has already disconnected; failures
// are logged only and never reach the stream.
func (a *Advisor) persist(ctx context.Context, topicID int64, question, answer string) {
	if topicID == 0 {
		return
	}
	tokens := countTokens(question, answer)
	if err := a.topics.RecordExchange(context.WithoutCancel(ctx), topicID, question, answer, tokens); err != nil {
		a.logger.Error("persisting exchange", "topic_id", topicID, "error", err)
	}
}

// autoTitle derives a topic title from a question's prefix.
func autoTitle(question string) string {
	runes := []rune(strings.TrimSpace(question))
	if len(runes) <= autoTitleLength {
		return string(runes)
	}
	return string(runes[:autoTitleLength]) + "..."
}

// boundHistory keeps the last historyTurns valid entries: recognized
// roles only, empty content dropped.
func boundHistory(history []HistoryMessage) []HistoryMessage {
	var valid []HistoryMessage
	for _, h := range history {
		if h.Content == "" {
			continue
		}
		if h.Role != "user" && h.Role != "assistant" {
			continue
		}
		valid = append(valid, h)
	}
	if len(valid) > historyTurns {
		valid = valid[len(valid)-historyTurns:]
	}
	return valid
}
