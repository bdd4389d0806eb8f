package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/strategos/advisor/internal/log"
	"github.com/strategos/advisor/internal/topic"
)

// maxTopicTitleLength bounds an explicitly supplied topic title.
const maxTopicTitleLength = 200

// topicStore is the persistence surface the topic endpoints need.
// *topic.Store satisfies it.
type topicStore interface {
	Create(ctx context.Context, title string) (*topic.Topic, error)
	List(ctx context.Context) ([]topic.Topic, error)
	History(ctx context.Context, topicID int64) ([]topic.Turn, error)
}

// topicHandler serves topic management endpoints.
type topicHandler struct {
	store  topicStore
	logger log.Logger
}

type createTopicRequest struct {
	Title string `json:"title"`
}

// create handles POST /api/v1/topics.
func (h *topicHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", h.logger)
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "title is required", h.logger)
		return
	}
	if len([]rune(title)) > maxTopicTitleLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "title too long", h.logger)
		return
	}

	created, err := h.store.Create(r.Context(), title)
	if err != nil {
		h.logger.Error("creating topic", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create topic", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, created, h.logger)
}

// list handles GET /api/v1/topics, most-recently-updated first.
func (h *topicHandler) list(w http.ResponseWriter, r *http.Request) {
	topics, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("listing topics", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list topics", h.logger)
		return
	}
	if topics == nil {
		topics = []topic.Topic{}
	}
	writeJSON(w, http.StatusOK, topics, h.logger)
}

// history handles GET /api/v1/topics/{id}/turns, chronological.
func (h *topicHandler) history(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid topic id", h.logger)
		return
	}

	turns, err := h.store.History(r.Context(), id)
	if err != nil {
		h.logger.Error("fetching topic history", "topic_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to fetch history", h.logger)
		return
	}
	if turns == nil {
		turns = []topic.Turn{}
	}
	writeJSON(w, http.StatusOK, turns, h.logger)
}
