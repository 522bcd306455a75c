// Package api provides the HTTP REST API for coachd.
//
// Endpoints:
//
//	GET  /health                         liveness probe
//	GET  /ready                          readiness probe (DB ping)
//	POST /api/lessons                    create a lesson (embeds content)
//	GET  /api/lessons                    list the caller's lessons
//	GET  /api/lessons/{id}               fetch one lesson
//	PUT  /api/lessons/{id}               update a lesson (re-embeds)
//	DELETE /api/lessons/{id}             delete a lesson and its vectors
//	GET  /api/lessons/{id}/attachments   list lesson attachments
//	POST /api/lessons/{id}/attachments   link an uploaded file to a lesson
//	POST /api/search                     nearest-lesson vector search
//	POST /api/ask                        grounded explanation
//	POST /api/practice/question          generate a practice question
//	POST /api/practice/grade             grade a student answer
//
// Authentication is a bearer JWT whose subject is the caller's user ID.
// Requests without a token run as anonymous; search and ask work anonymously,
// writes create ownerless records.
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: logging and recovery middleware
//   - auth.go: JWT bearer authentication
//   - health.go: health check endpoints
//   - lessons.go: lesson and attachment endpoints
//   - search.go: vector search endpoint
//   - coach.go: explanation and practice endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachkit/coachd/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Generation calls can take tens of seconds, so this stays generous.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the coachd REST API.
type Server struct {
	mux       *http.ServeMux
	jwtSecret []byte
	logger    log.Logger

	// Handlers
	health  *HealthHandler
	lessons *LessonHandler
	search  *SearchHandler
	coach   *CoachHandler
}

// NewServer creates an HTTP server with all routes registered.
// jwtSecret signs and verifies bearer tokens; an empty secret rejects every
// authenticated request but still serves anonymous traffic.
func NewServer(pool *pgxpool.Pool, store LessonStore, searcher Searcher, coach Coach, jwtSecret []byte, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		jwtSecret: jwtSecret,
		logger:    logger,
		health:    NewHealthHandler(pool, logger),
		lessons:   NewLessonHandler(store, logger),
		search:    NewSearchHandler(searcher, logger),
		coach:     NewCoachHandler(coach, logger),
	}

	s.health.RegisterRoutes(mux)
	s.lessons.RegisterRoutes(mux)
	s.search.RegisterRoutes(mux)
	s.coach.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → auth → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware, loggingMiddleware, authMiddleware(s.jwtSecret))
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
