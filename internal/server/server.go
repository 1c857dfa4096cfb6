// Package server exposes a fare.Model over HTTP with gin.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/YuminosukeSato/farecast/fare"
	"github.com/YuminosukeSato/farecast/pkg/errors"
	"github.com/YuminosukeSato/farecast/pkg/log"
	"github.com/gin-gonic/gin"
)

// Options configures request defaults and the HTTP listener.
type Options struct {
	Service string
	Mode    string

	DefaultHoursAhead int
	DefaultTransport  string
	DefaultProvider   string
	BatchTransports   []string
	BatchProviders    []string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultOptions mirrors the public API defaults.
func DefaultOptions() Options {
	return Options{
		Service:           "fare-prediction",
		Mode:              gin.ReleaseMode,
		DefaultHoursAhead: fare.DefaultHoursAhead,
		DefaultTransport:  "cab",
		DefaultProvider:   "obeer",
		BatchTransports:   []string{"bike", "auto", "cab"},
		BatchProviders:    []string{"obeer", "radipoo", "yela"},
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

// Server serves predictions from a shared model. Retraining the model
// while the server runs is safe; each request sees one bundle.
type Server struct {
	model  *fare.Model
	opts   Options
	logger log.Logger
}

// New creates a Server.
func New(m *fare.Model, opts Options) *Server {
	return &Server{
		model:  m,
		opts:   opts,
		logger: log.GetLoggerWithName("server"),
	}
}

// Routes builds the gin engine.
func (s *Server) Routes() *gin.Engine {
	if s.opts.Mode != "" {
		gin.SetMode(s.opts.Mode)
	}
	r := gin.New()
	r.Use(Recovery(s.logger), Logging(s.logger))

	r.GET("/health", s.Health)
	r.POST("/predict", s.Predict)
	r.POST("/best-time", s.BestTime)
	r.POST("/batch-predict", s.BatchPredict)
	r.GET("/model-info", s.ModelInfo)
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("HTTP server shutting down")
	return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown")
}
