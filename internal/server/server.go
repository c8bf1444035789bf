// Package server exposes the pipeline over HTTP.
//
// Routes:
//
//	POST /v1/extract   PDF as multipart field "file" or as the raw body;
//	                   optional "fields" (comma separated) in query or form
//	GET  /v1/schema    the loaded field schema
//	GET  /healthz      liveness
//	GET  /metrics      Prometheus metrics
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"policyocr/internal/logger"
	"policyocr/internal/pipeline"
	"policyocr/internal/schema"
	"policyocr/pkg/models"
)

// DefaultShutdownTimeout is how long in-flight extractions get to finish.
const DefaultShutdownTimeout = 30 * time.Second

// Processor is the pipeline as seen by the handlers.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*models.ExtractionResult, error)
	Schema() *schema.Schema
}

type Config struct {
	Addr            string
	MaxPayloadBytes int64
	// RequestTimeout bounds the whole request. It should sit above the
	// pipeline budget so the pipeline reports its own timeout first.
	RequestTimeout time.Duration
	Backend        string // reported by /healthz
}

type Server struct {
	cfg       Config
	processor Processor
	log       zerolog.Logger
}

func New(cfg Config, p Processor) *Server {
	return &Server{
		cfg:       cfg,
		processor: p,
		log:       logger.WithComponent("server"),
	}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/extract", s.handleExtract)
	mux.HandleFunc("GET /v1/schema", s.handleSchema)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.logRequests(mux)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	writeTimeout := s.cfg.RequestTimeout
	if writeTimeout > 0 {
		writeTimeout += 5 * time.Second
	}
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
		return nil
	case <-ctx.Done():
		s.log.Info().Msg("Shutdown signal received, starting graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	srv.SetKeepAlivesEnabled(false)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Dur("timeout", DefaultShutdownTimeout).Msg("Graceful shutdown failed, forcing close")
		_ = srv.Close()
		return err
	}
	s.log.Info().Msg("HTTP server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		ev := s.log.Debug()
		if rec.status >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
