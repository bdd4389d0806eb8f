// Package app wires configuration, storage, the knowledge index, and
// the model client into a running application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strategos/advisor/db"
	"github.com/strategos/advisor/internal/chat"
	"github.com/strategos/advisor/internal/config"
	"github.com/strategos/advisor/internal/knowledge"
	"github.com/strategos/advisor/internal/llm"
	"github.com/strategos/advisor/internal/log"
	"github.com/strategos/advisor/internal/memory"
	"github.com/strategos/advisor/internal/metrics"
	"github.com/strategos/advisor/internal/topic"
)

// App holds the wired application components.
type App struct {
	Config  *config.Config
	Logger  log.Logger
	Pool    *pgxpool.Pool
	Index   *knowledge.Index
	Topics  *topic.Store
	Advisor *chat.Advisor
}

// Setup loads and validates configuration, runs migrations, and wires
// every component. Call Close when done.
func Setup(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return SetupWithConfig(ctx, cfg)
}

// SetupWithConfig wires the application from an already validated
// configuration.
func SetupWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.New(log.Config{
		Level: parseLogLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := llm.New(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("initializing model client: %w", err)
	}

	index := knowledge.NewIndex(cfg.CorpusDirs, logger)
	retriever := knowledge.NewRetriever(index)
	assembler := metrics.NewAssembler(metrics.NewStore(pool), logger)
	recall := memory.NewRecall(pool, logger)
	topics := topic.NewStore(pool, logger)

	advisor := chat.NewAdvisor(retriever, assembler, recall, topics, client, cfg.RetrievalTopK, logger)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Index:   index,
		Topics:  topics,
		Advisor: advisor,
	}, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// providePool runs migrations and creates the PostgreSQL connection
// pool with connection-management defaults.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// parseLogLevel maps a configured level name to slog. Unknown values
// fall back to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
