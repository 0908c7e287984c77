package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reuniteapp/reunite/internal/auth"
	"github.com/reuniteapp/reunite/internal/ratelimit"
	"github.com/reuniteapp/reunite/internal/service/matching"
	"github.com/reuniteapp/reunite/internal/storage"
)

// Server is the HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. Optional fields (nil-safe): Limiter, Broker, Broadcaster.
type ServerConfig struct {
	// Required dependencies.
	DB       *storage.DB
	JWTMgr   *auth.JWTManager
	MatchSvc *matching.Service
	Logger   *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter     ratelimit.Limiter
	Broker      *Broker
	Broadcaster matching.Broadcaster

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		MatchSvc:            cfg.MatchSvc,
		Broker:              cfg.Broker,
		Broadcaster:         cfg.Broadcaster,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Unauthenticated endpoints limit by IP; the rest by user.
	authRL := ratelimit.Middleware(cfg.Limiter, "auth", ratelimit.IPKeyFunc, reqIDFunc)
	apiRL := ratelimit.Middleware(cfg.Limiter, "api", userKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Account endpoints (no auth required, rate limited by IP).
	mux.Handle("POST /auth/signup", authRL(http.HandlerFunc(h.HandleSignup)))
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Reports.
	mux.Handle("POST /v1/reports", apiRL(http.HandlerFunc(h.HandleCreateReport)))
	mux.Handle("GET /v1/reports/mine", apiRL(http.HandlerFunc(h.HandleListMyReports)))
	mux.Handle("GET /v1/reports/{id}", apiRL(http.HandlerFunc(h.HandleGetReport)))

	// Matches. "resolved" is registered before "{id}" routes; the mux's
	// most-specific-pattern rule keeps them from colliding.
	mux.Handle("GET /v1/matches/resolved", apiRL(http.HandlerFunc(h.HandleListResolvedMatches)))
	mux.Handle("GET /v1/matches/{id}", apiRL(http.HandlerFunc(h.HandleGetMatch)))
	mux.Handle("POST /v1/matches/{id}/confirm", apiRL(http.HandlerFunc(h.HandleConfirmMatch)))

	// Chat.
	mux.Handle("GET /v1/matches/{id}/messages", apiRL(http.HandlerFunc(h.HandleListMessages)))
	mux.Handle("POST /v1/matches/{id}/messages", apiRL(http.HandlerFunc(h.HandleSendMessage)))

	// Live events (no rate limit — long-lived connections).
	mux.Handle("GET /v1/matches/{id}/events", http.HandlerFunc(h.HandleMatchEvents))
	mux.Handle("GET /v1/subscribe", http.HandlerFunc(h.HandleSubscribe))

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// userKeyFunc extracts the authenticated user id for rate limiting.
func userKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	return claims.Subject
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
