// Package server exposes the evaluator API over HTTP for external
// presenters. The core defines no wire format of its own; this is optional
// glue around the in-process function calls.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/veil/internal/evaluator"
)

const (
	defaultTimeout  = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Server routes presenter requests to an Evaluator.
type Server struct {
	router *chi.Mux
	eval   *evaluator.Evaluator
}

// NewServer builds a Server around the given evaluator.
func NewServer(eval *evaluator.Evaluator) *Server {
	s := &Server{
		router: chi.NewRouter(),
		eval:   eval,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(defaultTimeout))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/v1/process", s.handleProcess)
	s.router.Post("/v1/batch", s.handleBatch)

	return s
}

// Handler returns the router for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
