// Package api exposes the HTTP surface: the SSE chat endpoint, topic
// management, and health probes, behind the middleware stack.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/strategos/advisor/internal/log"
)

// ServerConfig contains the dependencies for the API server.
type ServerConfig struct {
	Logger      log.Logger
	Advisor     Answerer      // Required
	Topics      topicStore    // Required
	Pool        *pgxpool.Pool // Optional: nil degrades /ready to liveness
	CORSOrigins []string
	TrustProxy  bool // Trust X-Real-IP/X-Forwarded-For (behind a reverse proxy)
	RateBurst   int  // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON/SSE HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Advisor == nil {
		return nil, errors.New("advisor is required")
	}
	if cfg.Topics == nil {
		return nil, errors.New("topic store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &chatHandler{advisor: cfg.Advisor, logger: logger}
	th := &topicHandler{store: cfg.Topics, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat/stream", ch.ask)
	mux.HandleFunc("POST /api/v1/topics", th.create)
	mux.HandleFunc("GET /api/v1/topics", th.list)
	mux.HandleFunc("GET /api/v1/topics/{id}/turns", th.history)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery -> RequestID -> Logging -> CORS -> RateLimit -> Routes
	// RequestID precedes Logging so request_id is in log attributes;
	// CORS precedes RateLimit so preflight gets proper headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
