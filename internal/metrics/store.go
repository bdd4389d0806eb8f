// Package metrics assembles a business-metrics context section from
// independent operational queries, tolerating individual source
// failures so that missing data never blocks a conversation.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// querier abstracts the read-only subset of pgxpool.Pool used by the
// store. Defined on the consumer side so tests can supply a fake.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PlanCount is one row of the active-subscription plan distribution.
type PlanCount struct {
	Plan  string
	Count int64
}

// BotCount is one row of the recent bot-usage breakdown.
type BotCount struct {
	Bot   string
	Count int64
}

// IndexScore is the most recent index-score measurement.
type IndexScore struct {
	Score      float64
	MeasuredAt time.Time
}

// Store runs the operational aggregate queries backing the metrics
// snapshot. Read-only; no DDL is ever issued here.
type Store struct {
	db querier
}

// NewStore creates a metrics store over a pgx connection pool.
func NewStore(db querier) *Store {
	return &Store{db: db}
}

// UserCount returns the total number of registered users.
func (s *Store) UserCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// PlanDistribution returns active subscription counts grouped by plan,
// largest first.
func (s *Store) PlanDistribution(ctx context.Context) ([]PlanCount, error) {
	rows, err := s.db.Query(ctx, `
		SELECT plan, COUNT(*)
		FROM subscriptions
		WHERE status = 'active'
		GROUP BY plan
		ORDER BY COUNT(*) DESC, plan`)
	if err != nil {
		return nil, fmt.Errorf("querying plan distribution: %w", err)
	}
	defer rows.Close()

	var dist []PlanCount
	for rows.Next() {
		var pc PlanCount
		if err := rows.Scan(&pc.Plan, &pc.Count); err != nil {
			return nil, fmt.Errorf("scanning plan distribution: %w", err)
		}
		dist = append(dist, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading plan distribution: %w", err)
	}
	return dist, nil
}

// RevenueLast30Days returns successful payment volume in cents over
// the trailing 30 days. No rows yields zero, not an error.
func (s *Store) RevenueLast30Days(ctx context.Context) (int64, error) {
	var cents int64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cent), 0)
		FROM payments
		WHERE status = 'succeeded'
		  AND created_at > now() - INTERVAL '30 days'`).Scan(&cents)
	if err != nil {
		return 0, fmt.Errorf("summing revenue: %w", err)
	}
	return cents, nil
}

// ContentAndUsageCounts returns the published content count and the
// trailing-7-day usage event count.
func (s *Store) ContentAndUsageCounts(ctx context.Context) (contents, events int64, err error) {
	err = s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM contents WHERE published_at IS NOT NULL),
			(SELECT COUNT(*) FROM usage_events WHERE created_at > now() - INTERVAL '7 days')`).
		Scan(&contents, &events)
	if err != nil {
		return 0, 0, fmt.Errorf("counting contents and usage: %w", err)
	}
	return contents, events, nil
}

// LatestIndexScore returns the most recent index-score measurement
// averaged across contents. Returns pgx.ErrNoRows when nothing has
// been measured yet.
func (s *Store) LatestIndexScore(ctx context.Context) (IndexScore, error) {
	var is IndexScore
	err := s.db.QueryRow(ctx, `
		SELECT AVG(score), MAX(measured_at)
		FROM index_scores
		WHERE measured_at > now() - INTERVAL '7 days'
		HAVING COUNT(*) > 0`).Scan(&is.Score, &is.MeasuredAt)
	if err != nil {
		return IndexScore{}, fmt.Errorf("reading index score: %w", err)
	}
	return is, nil
}

// BotUsage returns trailing-30-day bot action counts grouped by bot
// name, largest first.
func (s *Store) BotUsage(ctx context.Context) ([]BotCount, error) {
	rows, err := s.db.Query(ctx, `
		SELECT bot_name, COUNT(*)
		FROM bot_usage
		WHERE created_at > now() - INTERVAL '30 days'
		GROUP BY bot_name
		ORDER BY COUNT(*) DESC, bot_name`)
	if err != nil {
		return nil, fmt.Errorf("querying bot usage: %w", err)
	}
	defer rows.Close()

	var usage []BotCount
	for rows.Next() {
		var bc BotCount
		if err := rows.Scan(&bc.Bot, &bc.Count); err != nil {
			return nil, fmt.Errorf("scanning bot usage: %w", err)
		}
		usage = append(usage, bc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading bot usage: %w", err)
	}
	return usage, nil
}

// UnresolvedAlertCount returns the number of open alerts.
func (s *Store) UnresolvedAlertCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE NOT resolved`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting alerts: %w", err)
	}
	return n, nil
}

// SEOPageCount returns the number of tracked SEO pages.
func (s *Store) SEOPageCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM seo_pages`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting seo pages: %w", err)
	}
	return n, nil
}
