package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strategos/advisor/internal/log"
)

// health is a liveness probe. Returns 200 with {"status":"ok"}.
func health(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness reports whether the database is reachable. With a nil
// pool it degrades to a liveness check.
func readiness(pool *pgxpool.Pool, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"}, logger)
			return
		}
		if err := pool.Ping(r.Context()); err != nil {
			logger.Warn("readiness probe failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "not_ready", "database unreachable", logger)
			return
		}
		stats := pool.Stat()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ready",
			"total_conns": stats.TotalConns(),
			"idle_conns":  stats.IdleConns(),
		}, logger)
	}
}
