// Package server assembles the HTTP server: router, middleware, routes and
// the graceful shutdown that releases everything the server owns.
//
// This is the composition root for the HTTP side. main.go builds the engine,
// the database and the metrics registry; New turns them into services and
// handlers and wires those to routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/code-runner/internal/executor"
	"github.com/sakif/code-runner/internal/executor/language"
	"github.com/sakif/code-runner/internal/handler"
	"github.com/sakif/code-runner/internal/middleware"
	"github.com/sakif/code-runner/internal/repository"
	"github.com/sakif/code-runner/internal/service"
)

// Config holds server configuration.
type Config struct {
	Port            int
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	Limits          service.ExecutionLimits
	// DisplayOnlyLanguages may be saved as snippets but not executed.
	DisplayOnlyLanguages []string
}

// Deps are the collaborators the server wires into its handlers.
type Deps struct {
	Executor  executor.Executor
	Languages *language.Registry
	Snippets  repository.SnippetRepository
	// Metrics is served at /metrics when set.
	Metrics http.Handler
	// Ping reports whether the store is reachable, for /healthz.
	Ping func(ctx context.Context) error
	// Closers are closed in order after the server has stopped.
	Closers []io.Closer
}

// Server is the HTTP server and everything it owns.
type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger
}

// New creates a Server and sets up its routes.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.Executor == nil || deps.Languages == nil || deps.Snippets == nil {
		return nil, errors.New("server: executor, languages and snippets are required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
//	GET    /healthz              → liveness and store check
//	GET    /metrics              → prometheus metrics
//	GET    /api/languages        → executable languages
//	POST   /api/compile          → run code
//	POST   /compile              → run code (legacy path)
//	*      /api/codes/...        → saved code, see SnippetHandler.Routes
//
// Middleware runs in the order added: RequestID first so every later layer,
// the access log included, can read the id.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	execService := service.NewExecutionService(s.deps.Executor, s.deps.Languages, s.config.Limits, s.logger)
	snippetService := service.NewSnippetService(s.deps.Snippets, s.deps.Languages, s.config.DisplayOnlyLanguages, s.logger)

	compileHandler := handler.NewCompileHandler(execService, s.logger)
	languagesHandler := handler.NewLanguagesHandler(s.deps.Languages)
	snippetHandler := handler.NewSnippetHandler(snippetService, s.logger)

	s.router.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics)
	}

	// Request bodies are only read by these groups.
	s.router.Group(func(r chi.Router) {
		if s.config.MaxBodyBytes > 0 {
			r.Use(middleware.MaxBody(s.config.MaxBodyBytes))
		}

		r.Post("/compile", compileHandler.HandleCompile)

		r.Route("/api", func(r chi.Router) {
			r.Get("/languages", languagesHandler.HandleList)
			r.Post("/compile", compileHandler.HandleCompile)
			r.Route("/codes", snippetHandler.Routes)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.deps.Ping != nil {
		if err := s.deps.Ping(r.Context()); err != nil {
			s.logger.Error("health check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"status":"unavailable"}`+"\n")
			return
		}
	}
	_, _ = io.WriteString(w, `{"status":"ok"}`+"\n")
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		s.close()
		return fmt.Errorf("listening on port %d: %w", s.config.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. In-flight requests get
// ShutdownTimeout to finish; then the Closers run.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.close()

	// No WriteTimeout: a compile request legitimately lasts as long as the
	// program's own time limit.
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}

func (s *Server) close() {
	for _, c := range s.deps.Closers {
		if err := c.Close(); err != nil {
			s.logger.Warn("failed to close resource", slog.String("error", err.Error()))
		}
	}
}
