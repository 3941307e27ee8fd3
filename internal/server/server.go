package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/signalrelay/internal/crypto"
	"github.com/alanyoungcy/signalrelay/internal/domain"
	"github.com/alanyoungcy/signalrelay/internal/server/handler"
	"github.com/alanyoungcy/signalrelay/internal/server/middleware"
	"github.com/alanyoungcy/signalrelay/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	APIKey        string // if empty, /api authentication is disabled
	WebhookSecret string // if empty, webhook secret checking is disabled

	// SigningSecret, when set, requires X-Signature on webhook POSTs.
	SigningSecret    string
	SignatureMaxSkew time.Duration
	MaxBodyBytes     int64

	// WebhookRateLimit requests per WebhookRateWindow per client IP; zero
	// disables webhook rate limiting.
	WebhookRateLimit  int
	WebhookRateWindow time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Signals and Archive are optional.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Webhook   *handler.WebhookHandler
	Positions *handler.PositionHandler
	Signals   *handler.SignalHandler
	Archive   *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket front of the relay.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered. limiter may be
// nil, in which case webhook routes are not rate limited. wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	// Webhook routes: rate limiting, shared secret and optional body
	// signature, no API key.
	var hookMW []func(http.Handler) http.Handler
	if limiter != nil && cfg.WebhookRateLimit > 0 {
		hookMW = append(hookMW, middleware.RateLimit(limiter, "webhook", cfg.WebhookRateLimit, cfg.WebhookRateWindow, logger))
	}
	hookMW = append(hookMW, middleware.WebhookSecret(cfg.WebhookSecret))
	if cfg.SigningSecret != "" {
		maxBody := cfg.MaxBodyBytes
		if maxBody <= 0 {
			maxBody = handler.DefaultMaxBody
		}
		verifier := crypto.NewVerifier(cfg.SigningSecret, cfg.SignatureMaxSkew)
		hookMW = append(hookMW, middleware.WebhookSignature(verifier, maxBody, logger))
	}
	hook := chain(hookMW...)
	mux.Handle("POST /webhook", hook(http.HandlerFunc(handlers.Webhook.Receive)))
	mux.Handle("POST /personal/{chat_id}/webhook", hook(http.HandlerFunc(handlers.Webhook.ReceivePersonal)))
	mux.HandleFunc("GET /webhook", handlers.Webhook.Info)
	mux.HandleFunc("GET /personal/{chat_id}/webhook", handlers.Webhook.Info)

	mux.HandleFunc("GET /{$}", handlers.Health.Root)

	// API routes behind the API key.
	api := http.NewServeMux()
	api.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	api.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	api.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	api.HandleFunc("GET /api/positions/{symbol}", handlers.Positions.GetPosition)
	if handlers.Signals != nil {
		api.HandleFunc("GET /api/signals", handlers.Signals.ListSignals)
	}
	if handlers.Archive != nil {
		api.HandleFunc("POST /api/archive/trigger", handlers.Archive.TriggerArchive)
	}
	if wsHub != nil {
		api.HandleFunc("GET /ws", wsHub.HandleWS)
	}
	authed := middleware.Auth(cfg.APIKey)(api)
	mux.Handle("/api/", authed)
	if wsHub != nil {
		mux.Handle("GET /ws", authed)
	}

	// Outer chain: CORS first, then logging.
	h := chain(middleware.CORS(cfg.CORSOrigins), middleware.Logging(logger))(mux)

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the assembled handler chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// chain composes middleware so the first argument is outermost.
func chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}
