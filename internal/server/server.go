// Package server wires the HTTP routes and runs the service until it is
// asked to stop.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ingeweb/contactws/internal/auth"
	"github.com/ingeweb/contactws/internal/config"
	"github.com/ingeweb/contactws/internal/handler"
	"github.com/ingeweb/contactws/internal/middleware"
)

type Config struct {
	Port            int
	ShutdownTimeout time.Duration
}

// Scheduler is the background task runner started alongside the server.
type Scheduler interface {
	Start(ctx context.Context)
	Wait()
}

// Deps are the collaborators built by the caller.
type Deps struct {
	Auth      *handler.AuthHandler
	Admin     *handler.AdminHandler
	Tokens    *auth.TokenService
	Policy    config.Policy
	Scheduler Scheduler // optional
}

type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes registers:
//
//	POST /login                    public
//	POST /logout                   public
//	GET  /auth/capabilities        public
//	GET  /api/me                   session
//	GET  /api/me/linked-logins     session
//	GET  /api/sync/stats           site admin
//	POST /api/sync/run             site admin
//	POST /api/notify/run           site admin
//	GET  /api/tasks                site admin
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s.router.Post("/login", s.deps.Auth.HandleLogin)
	s.router.Post("/logout", s.deps.Auth.HandleLogout)
	s.router.Get("/auth/capabilities", s.deps.Auth.HandleCapabilities)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(s.deps.Tokens))

		r.Get("/me", s.deps.Auth.HandleMe)
		r.Get("/me/linked-logins", s.deps.Auth.HandleLinkedLogins)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSiteAdmin(s.deps.Policy))

			r.Get("/sync/stats", s.deps.Admin.HandleSyncStats)
			r.Post("/sync/run", s.deps.Admin.HandleRunSync)
			r.Post("/notify/run", s.deps.Admin.HandleRunNotify)
			r.Get("/tasks", s.deps.Admin.HandleTasks)
		})
	})
}

// Start serves HTTP and runs the scheduler until ctx is cancelled or the
// process receives SIGINT or SIGTERM. In-flight requests get
// ShutdownTimeout to finish, then Start waits for running tasks.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.deps.Scheduler != nil {
		s.deps.Scheduler.Start(ctx)
		defer s.deps.Scheduler.Wait()
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.Int("port", s.config.Port))
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		stop()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}
