// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware and
// routes, and decides:
//   - Which URL patterns map to which handler functions
//   - What middleware runs on which routes
//   - How the server starts and stops gracefully
//
// WHY SEPARATE FROM main.go?
// Tests build the full router with fakes through New and Handler without
// binding a port, and main.go stays a list of constructors.
//
// DEPENDENCY INJECTION FLOW:
// cmd/server builds the expensive pieces (runner, registry, history DB,
// metrics) and passes them in through Dependencies. The server never opens a
// database or talks to Docker itself, so it also never closes them.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Shree113/newcd/internal/auth"
	"github.com/Shree113/newcd/internal/handler"
	"github.com/Shree113/newcd/internal/metrics"
	"github.com/Shree113/newcd/internal/middleware"
	"github.com/Shree113/newcd/internal/repository"
)

// ShutdownGrace is how long in-flight requests get to finish after SIGINT or
// SIGTERM.
const ShutdownGrace = 30 * time.Second

// Config holds server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	// WriteTimeout must outlast the slowest execution: queue wait plus
	// compile plus run.
	WriteTimeout time.Duration
}

// Dependencies are the collaborators the routes need.
type Dependencies struct {
	Executor handler.Executor
	Catalog  handler.Catalog
	// History is optional. When nil the /api/executions routes are absent.
	History repository.ExecutionRepository
	Metrics *metrics.Collector
	// Tokens is optional. When nil /execute is open.
	Tokens *auth.TokenService
}

// Server represents the HTTP server and its router.
type Server struct {
	router *chi.Mux
	config Config
	deps   Dependencies
	logger *slog.Logger
}

// New creates a Server with every route registered.
func New(cfg Config, deps Dependencies, logger *slog.Logger) *Server {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewDefault()
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST   /execute                → Run a submission (JSON)
// POST   /api/execute            → Same, for clients that prefix everything
// GET    /api/languages          → Configured languages and availability
// GET    /api/executions         → Recent executions (history enabled only)
// GET    /api/executions/{id}    → One execution record
// GET    /healthz                → Liveness
// GET    /metrics                → Prometheus exposition
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID, so every later log line can carry it
//  2. RealIP, so the logger sees the client and not the proxy
//  3. CORS, which answers preflights before anything else runs
//  4. Logger and Metrics, which observe the final status
//  5. Recoverer, innermost, so a panic becomes a 500 the outer layers see
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Metrics(s.deps.Metrics))
	r.Use(chimiddleware.Recoverer)

	executeHandler := handler.NewExecuteHandler(s.deps.Executor, s.logger)
	requireAuth := auth.RequireAuth(s.deps.Tokens)

	r.Get("/healthz", handler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())

	r.With(requireAuth).Post("/execute", executeHandler.HandleExecute)

	r.Route("/api", func(r chi.Router) {
		r.With(requireAuth).Post("/execute", executeHandler.HandleExecute)
		r.Get("/languages", handler.NewLanguageHandler(s.deps.Catalog).HandleList)

		if s.deps.History != nil {
			executions := handler.NewExecutionHandler(s.deps.History, s.logger)
			r.Get("/executions", executions.HandleList)
			r.Get("/executions/{id}", executions.HandleGet)
		}
	})
}

// Serve listens until ctx is done, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait up to ShutdownGrace for in-flight requests, which may be
//     mid-execution, to finish
//  3. Return, so the caller's defers close the history DB and runner
//
// main wires ctx to SIGINT and SIGTERM.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.Bool("history", s.deps.History != nil),
			slog.Bool("auth", s.deps.Tokens != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
