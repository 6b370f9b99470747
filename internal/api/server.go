package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/hookd/internal/auth"
	"github.com/mattjoyce/hookd/internal/dispatch"
	"github.com/mattjoyce/hookd/internal/registry"
)

// Dispatcher starts units of work.
type Dispatcher interface {
	Begin() *dispatch.UnitOfWork
}

// HandlerCatalog lists the handler IDs the process can resolve.
type HandlerCatalog interface {
	IDs() []string
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the admin bearer token. Authentication is off when it is
	// empty and no Tokens are configured.
	APIKey string
	Tokens []auth.TokenConfig
	// MaxBodyBytes caps request bodies; 0 means 1 MiB.
	MaxBodyBytes int64
}

// Server is the HTTP trigger for dispatches.
type Server struct {
	config     Config
	dispatcher Dispatcher
	source     registry.Source
	catalog    HandlerCatalog
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// New creates a new API server instance
func New(config Config, d Dispatcher, src registry.Source, cat HandlerCatalog, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}
	return &Server{
		config:     config,
		dispatcher: d,
		source:     src,
		catalog:    cat,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.authEnabled())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		if s.authEnabled() {
			r.Use(s.authMiddleware)
		}
		r.With(s.requireScopes(auth.ScopeDispatch)).Post("/dispatch", s.handleDispatch)
		r.With(s.requireScopes(auth.ScopeDispatch)).Post("/dispatch/batch", s.handleDispatchBatch)
		r.With(s.requireScopes(auth.ScopeRegistryRead)).Get("/registry/{entity}", s.handleRegistry)
		r.With(s.requireScopes(auth.ScopeRegistryRead)).Get("/handlers", s.handleHandlers)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
