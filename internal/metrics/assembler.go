package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/strategos/advisor/internal/log"
)

// snapshotHeader prefixes every assembled context block.
const snapshotHeader = "=== Business Metrics Snapshot ==="

// Source provides the operational aggregates rendered into the
// snapshot. *Store satisfies it; tests substitute a fake.
type Source interface {
	UserCount(ctx context.Context) (int64, error)
	PlanDistribution(ctx context.Context) ([]PlanCount, error)
	RevenueLast30Days(ctx context.Context) (int64, error)
	ContentAndUsageCounts(ctx context.Context) (contents, events int64, err error)
	LatestIndexScore(ctx context.Context) (IndexScore, error)
	BotUsage(ctx context.Context) ([]BotCount, error)
	UnresolvedAlertCount(ctx context.Context) (int64, error)
	SEOPageCount(ctx context.Context) (int64, error)
}

// section is one independently-computed snapshot entry. A failing
// producer omits only its own slot.
type section struct {
	name    string
	produce func(ctx context.Context, src Source) (string, error)
}

// Assembler renders the metrics context block. Sections are computed
// concurrently since they share no mutable state; each failure is
// logged and that section alone is dropped, so Assemble never fails
// as a whole.
type Assembler struct {
	src    Source
	logger log.Logger
	now    func() time.Time
}

// NewAssembler creates an assembler over the given source.
func NewAssembler(src Source, logger log.Logger) *Assembler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Assembler{src: src, logger: logger, now: time.Now}
}

// Assemble produces the snapshot: a fixed header, a wall-clock
// timestamp, then whatever sections succeeded, joined by blank lines.
func (a *Assembler) Assemble(ctx context.Context) string {
	results := make([]string, len(sections))

	var wg sync.WaitGroup
	for i, sec := range sections {
		wg.Add(1)
		go func(slot int, sec section) {
			defer wg.Done()
			text, err := sec.produce(ctx, a.src)
			if err != nil {
				a.logger.Warn("metrics section failed", "section", sec.name, "error", err)
				return
			}
			results[slot] = text
		}(i, sec)
	}
	wg.Wait()

	var b strings.Builder
	b.WriteString(snapshotHeader)
	b.WriteString("\nGenerated: ")
	b.WriteString(a.now().Format(time.RFC3339))
	for _, text := range results {
		if text == "" {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(text)
	}
	return b.String()
}

var sections = []section{
	{name: "users", produce: produceUsers},
	{name: "plans", produce: producePlans},
	{name: "revenue", produce: produceRevenue},
	{name: "content", produce: produceContent},
	{name: "index_score", produce: produceIndexScore},
	{name: "bots", produce: produceBots},
	{name: "alerts", produce: produceAlerts},
	{name: "seo", produce: produceSEO},
}

func produceUsers(ctx context.Context, src Source) (string, error) {
	n, err := src.UserCount(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Users: %d registered", n), nil
}

func producePlans(ctx context.Context, src Source) (string, error) {
	dist, err := src.PlanDistribution(ctx)
	if err != nil {
		return "", err
	}
	if len(dist) == 0 {
		return "Active subscriptions by plan: 0", nil
	}
	parts := make([]string, len(dist))
	for i, pc := range dist {
		parts[i] = fmt.Sprintf("%s=%d", pc.Plan, pc.Count)
	}
	return "Active subscriptions by plan: " + strings.Join(parts, ", "), nil
}

func produceRevenue(ctx context.Context, src Source) (string, error) {
	cents, err := src.RevenueLast30Days(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Revenue (30d): $%.2f", float64(cents)/100), nil
}

func produceContent(ctx context.Context, src Source) (string, error) {
	contents, events, err := src.ContentAndUsageCounts(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Content: %d published, %d usage events (7d)", contents, events), nil
}

func produceIndexScore(ctx context.Context, src Source) (string, error) {
	is, err := src.LatestIndexScore(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		return "Index score (7d avg): N/A", nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Index score (7d avg): %.1f as of %s",
		is.Score, is.MeasuredAt.Format("2006-01-02")), nil
}

func produceBots(ctx context.Context, src Source) (string, error) {
	usage, err := src.BotUsage(ctx)
	if err != nil {
		return "", err
	}
	if len(usage) == 0 {
		return "Bot usage (30d): 0", nil
	}
	parts := make([]string, len(usage))
	for i, bc := range usage {
		parts[i] = fmt.Sprintf("%s=%d", bc.Bot, bc.Count)
	}
	return "Bot usage (30d): " + strings.Join(parts, ", "), nil
}

func produceAlerts(ctx context.Context, src Source) (string, error) {
	n, err := src.UnresolvedAlertCount(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Unresolved alerts: %d", n), nil
}

func produceSEO(ctx context.Context, src Source) (string, error) {
	n, err := src.SEOPageCount(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Tracked SEO pages: %d", n), nil
}
