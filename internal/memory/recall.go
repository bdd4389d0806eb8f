// Package memory retrieves bounded conversation history: recent turns
// of the active topic plus a digest of turns from other topics, both
// rendered as prompt text.
package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/strategos/advisor/internal/log"
)

const (
	// currentTopicTurns caps the active topic's history.
	currentTopicTurns = 10

	// crossTopicTurns caps the digest drawn from other topics.
	crossTopicTurns = 15

	// currentAnswerLimit truncates answers in the active topic's
	// history.
	currentAnswerLimit = 500

	// crossAnswerLimit truncates answers in the cross-topic digest.
	crossAnswerLimit = 400
)

// querier abstracts the read operations Recall needs from a
// pgxpool.Pool.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Recall fetches and renders conversation memory.
type Recall struct {
	db     querier
	logger log.Logger
}

// NewRecall creates a memory recall over a pgx connection pool.
func NewRecall(db querier, logger log.Logger) *Recall {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Recall{db: db, logger: logger}
}

// Build returns the combined memory section for a request. Either
// half failing is logged and omitted; both halves empty yields the
// empty string so the caller drops the section entirely.
func (r *Recall) Build(ctx context.Context, topicID int64) string {
	var parts []string

	if topicID != 0 {
		current, err := r.currentTopicHistory(ctx, topicID)
		switch {
		case err != nil:
			r.logger.Warn("current-topic history unavailable", "topic_id", topicID, "error", err)
		case current != "":
			parts = append(parts, "## Current topic history\n"+current)
		}
	}

	cross, err := r.crossTopicMemory(ctx, topicID)
	switch {
	case err != nil:
		r.logger.Warn("cross-topic memory unavailable", "error", err)
	case cross != "":
		parts = append(parts, "## Memory from other topics\n"+cross)
	}

	return strings.Join(parts, "\n\n")
}

// currentTopicHistory renders the active topic's most recent turns.
// Rows are fetched newest-first to catch the tail of a long topic,
// then reversed so the model reads the conversation in order.
func (r *Recall) currentTopicHistory(ctx context.Context, topicID int64) (string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT question, response, created_at
		FROM conversations
		WHERE topic_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, topicID, currentTopicTurns)
	if err != nil {
		return "", fmt.Errorf("fetching current-topic history: %w", err)
	}
	defer rows.Close()

	type turn struct {
		question  string
		response  string
		createdAt time.Time
	}

	var turns []turn
	for rows.Next() {
		var t turn
		if err := rows.Scan(&t.question, &t.response, &t.createdAt); err != nil {
			return "", fmt.Errorf("scanning history turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("reading history turns: %w", err)
	}

	var b strings.Builder
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] Q: %s\nA: %s",
			t.createdAt.Format("2006-01-02 15:04"),
			t.question,
			truncate(t.response, currentAnswerLimit))
	}
	return b.String(), nil
}

// crossTopicMemory renders recent turns from every topic except the
// active one, newest-first. A topic-title banner is written whenever
// the title changes between consecutive rows; rows for one topic are
// adjacent only because of the time ordering, so an interleaved topic
// gets a second banner.
func (r *Recall) crossTopicMemory(ctx context.Context, activeTopicID int64) (string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.title, c.question, c.response, c.created_at
		FROM conversations c
		JOIN topics t ON t.id = c.topic_id
		WHERE $1 = 0 OR c.topic_id <> $1
		ORDER BY c.created_at DESC
		LIMIT $2`, activeTopicID, crossTopicTurns)
	if err != nil {
		return "", fmt.Errorf("fetching cross-topic memory: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	var lastTitle string
	first := true
	for rows.Next() {
		var title, question, response string
		var createdAt time.Time
		if err := rows.Scan(&title, &question, &response, &createdAt); err != nil {
			return "", fmt.Errorf("scanning memory turn: %w", err)
		}

		if first || title != lastTitle {
			if !first {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "### %s\n", title)
			lastTitle = title
		} else {
			b.WriteString("\n")
		}
		first = false

		fmt.Fprintf(&b, "[%s] Q: %s\nA: %s",
			createdAt.Format("2006-01-02 15:04"),
			question,
			truncate(response, crossAnswerLimit))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("reading memory turns: %w", err)
	}

	return b.String(), nil
}

// truncate cuts s to at most limit runes, keeping valid UTF-8.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
