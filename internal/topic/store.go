// Package topic manages conversation topics and their persisted
// question/answer turns.
package topic

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/strategos/advisor/internal/log"
)

const (
	// listLimit bounds the topic listing.
	listLimit = 50

	// historyLimit bounds a topic's returned turn history.
	historyLimit = 200
)

// Topic is a named conversation thread. MessageCount and UpdatedAt
// move exactly once per persisted exchange.
type Topic struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Turn is one persisted question/answer exchange. Immutable once
// written; it belongs to exactly one topic.
type Turn struct {
	ID         int64     `json:"id"`
	TopicID    int64     `json:"topicId"`
	Question   string    `json:"question"`
	Response   string    `json:"response"`
	TokensUsed int       `json:"tokensUsed"`
	CreatedAt  time.Time `json:"createdAt"`
}

// db abstracts the pgxpool.Pool operations the store needs,
// including transaction support for RecordExchange.
type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists topics and turns in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     db
	logger log.Logger
}

// NewStore creates a topic store over a pgx connection pool.
func NewStore(db db, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Create inserts a new topic and returns it with its generated id.
func (s *Store) Create(ctx context.Context, title string) (*Topic, error) {
	t := Topic{Title: title}
	err := s.db.QueryRow(ctx, `
		INSERT INTO topics (title)
		VALUES ($1)
		RETURNING id, message_count, created_at, updated_at`, title).
		Scan(&t.ID, &t.MessageCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating topic: %w", err)
	}

	s.logger.Debug("topic created", "id", t.ID, "title", t.Title)
	return &t, nil
}

// List returns topics most-recently-updated first, bounded.
func (s *Store) List(ctx context.Context) ([]Topic, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, message_count, created_at, updated_at
		FROM topics
		ORDER BY updated_at DESC
		LIMIT $1`, listLimit)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		var t Topic
		if err := rows.Scan(&t.ID, &t.Title, &t.MessageCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading topics: %w", err)
	}
	return topics, nil
}

// History returns a topic's most recent turns in chronological order.
// The inner select takes the newest rows; the outer reorders them
// oldest-first for display.
func (s *Store) History(ctx context.Context, topicID int64) ([]Turn, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, topic_id, question, response, tokens_used, created_at
		FROM (
			SELECT id, topic_id, question, response, tokens_used, created_at
			FROM conversations
			WHERE topic_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`, topicID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching topic history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.TopicID, &t.Question, &t.Response, &t.TokensUsed, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading topic history: %w", err)
	}
	return turns, nil
}

// RecordExchange persists one completed question/answer pair and bumps
// the topic's message counter and timestamp in the same transaction.
func (s *Store) RecordExchange(ctx context.Context, topicID int64, question, response string, tokensUsed int) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (topic_id, question, response, tokens_used)
		VALUES ($1, $2, $3, $4)`, topicID, question, response, tokensUsed)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE topics
		SET message_count = message_count + 1, updated_at = now()
		WHERE id = $1`, topicID)
	if err != nil {
		return fmt.Errorf("updating topic counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing exchange: %w", err)
	}

	s.logger.Debug("exchange recorded", "topic_id", topicID, "tokens", tokensUsed)
	return nil
}
