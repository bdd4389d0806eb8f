package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/strategos/advisor/internal/chat"
	"github.com/strategos/advisor/internal/log"
)

// Answerer processes one conversation turn, emitting stream events.
// *chat.Advisor satisfies it.
type Answerer interface {
	Answer(ctx context.Context, req chat.Request, e *chat.Emitter)
}

// chatHandler serves the streaming conversation endpoint.
type chatHandler struct {
	advisor Answerer
	logger  log.Logger
}

// ask handles POST /api/v1/chat/stream. Validation failures are plain JSON
// rejections; everything after the first event is SSE framed as
// "data: <json>\n\n", one JSON event object per frame.
func (h *chatHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support streaming", h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	emitter := chat.NewEmitter(func(ev chat.Event) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return fmt.Errorf("writing event: %w", err)
		}
		flusher.Flush()
		return nil
	})

	h.advisor.Answer(r.Context(), req, emitter)
}
