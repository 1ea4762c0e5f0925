// Package api provides the Juniper Stemma REST API server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/JuniperStemma/core/cas"
	"github.com/FocuswithJustin/JuniperStemma/internal/cache"
	"github.com/FocuswithJustin/JuniperStemma/internal/config"
	"github.com/FocuswithJustin/JuniperStemma/internal/logging"
	"github.com/FocuswithJustin/JuniperStemma/internal/metrics"
	"github.com/FocuswithJustin/JuniperStemma/internal/pipeline"
	"github.com/FocuswithJustin/JuniperStemma/internal/store"
)

// Server serves the pipeline over HTTP.
type Server struct {
	cfg       *config.Config
	svc       *pipeline.Service
	artifacts *cas.Store // nil disables /artifacts
	hub       *Hub
	limiter   *RateLimiter // nil when rate limiting is off
	upgrader  *websocket.Upgrader
	validate  *validator.Validate
	metrics   http.Handler
	summaries *cache.Snapshot[[]store.Summary]
	started   time.Time
	version   string
}

// New builds a server. artifacts may be nil.
func New(cfg *config.Config, svc *pipeline.Service, artifacts *cas.Store, version string) *Server {
	s := &Server{
		cfg:       cfg,
		svc:       svc,
		artifacts: artifacts,
		hub:       NewHub(),
		upgrader:  newUpgrader(cfg.Server.AllowedOrigins),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		metrics:   metrics.Handler(),
		summaries: cache.NewSnapshot[[]store.Summary](5 * time.Second),
		started:   time.Now(),
		version:   version,
	}
	if cfg.Server.RateLimitRequests > 0 {
		s.limiter = NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: cfg.Server.RateLimitRequests,
			BurstSize:         cfg.Server.RateLimitBurst,
		})
	}
	return s
}

// WithMetricsHandler replaces the /metrics handler, e.g. with one bound to a
// private registry.
func (s *Server) WithMetricsHandler(h http.Handler) *Server {
	s.metrics = h
	return s
}

// manuscripts lists the store through a short-lived snapshot; uploads and
// deletes invalidate it.
func (s *Server) manuscripts(ctx context.Context) ([]store.Summary, error) {
	return s.summaries.Get(func() ([]store.Summary, error) {
		return s.svc.Store.List(ctx)
	})
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /manuscripts", s.handleListManuscripts)
	mux.HandleFunc("POST /manuscripts", s.handleUpload)
	mux.HandleFunc("GET /manuscripts/{id}", s.handleGetManuscript)
	mux.HandleFunc("DELETE /manuscripts/{id}", s.handleDeleteManuscript)
	mux.HandleFunc("GET /manuscripts/{id}/verses", s.handleVerses)
	mux.HandleFunc("GET /manuscripts/{id}/verses/{verse}", s.handleVerse)
	for path, h := range map[string]http.HandlerFunc{
		"/collate":     s.handleCollate,
		"/differences": s.handleDifferences,
		"/distance":    s.handleDistance,
		"/tree":        s.handleTree,
		"/export":      s.handleExport,
	} {
		mux.HandleFunc("GET "+path, h)
		mux.HandleFunc("POST "+path, h)
	}
	mux.HandleFunc("GET /artifacts/{hash}", s.handleArtifact)
	mux.Handle("GET /metrics", s.metrics)
	mux.HandleFunc("GET /ws", s.hub.ServeWS(s.upgrader))
	return mux
}

// Handler returns the routes wrapped in the middleware chain: security
// headers, rate limiting, CORS, then request id and access logging outermost.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = securityHeaders(s.routes())
	if s.limiter != nil {
		handler = s.limiter.Middleware(handler)
	}
	handler = corsMiddleware(s.cfg.Server.AllowedOrigins, handler)
	return logging.CombinedMiddleware(handler)
}

// Start runs the background goroutines (websocket hub, limiter cleanup)
// until ctx is done.
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
	if s.limiter != nil {
		go s.limiter.Cleanup(ctx)
	}
}

// Run serves on the configured port until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if len(s.cfg.Server.AllowedOrigins) > 0 {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "restricted",
			"allowed_origins_count", len(s.cfg.Server.AllowedOrigins))
	} else {
		logging.SecurityEvent("cors_configured", "api",
			"mode", "permissive",
			"note", "allowing all origins (*) - consider restricting for production")
	}
	if s.limiter != nil {
		logging.Info("rate limiting enabled",
			"requests_per_minute", s.cfg.Server.RateLimitRequests,
			"burst_size", s.limiter.config.BurstSize)
	}
	logging.ServerStartup("rest_api", "http", s.cfg.Server.Port, "websocket_protocol", "ws")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	logging.Info("shutting down api server")
	return srv.Shutdown(shutdownCtx)
}
