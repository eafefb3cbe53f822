// Package server exposes scraping and trending posts over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	readTimeout     = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Server represents an HTTP server with lifecycle management.
type Server struct {
	server *http.Server
	log    zerolog.Logger
}

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(h *Handler, metrics http.Handler, log zerolog.Logger) *gin.Engine {
	router := gin.New()

	// Recovery first to catch panics
	router.Use(RecoveryMiddleware(log))
	router.Use(LoggerMiddleware(log))

	router.GET("/healthz", h.Health)
	router.GET("/trending", h.TrendingDigest)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	api := router.Group("/api")
	api.POST("/scrape/x", h.ScrapeX)
	api.GET("/posts/trending", h.Trending)
	api.GET("/hotspots/twitter", h.TwitterHotspots)

	return router
}

// New creates a server listening on addr
func New(addr string, handler http.Handler, log zerolog.Logger) *Server {
	return &Server{
		// No write timeout: a scrape can legitimately run for minutes
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: readTimeout,
			ReadTimeout:       readTimeout,
		},
		log: log.With().Str("component", "server").Logger(),
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("address", s.server.Addr).Msg("starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Dur("timeout", shutdownTimeout).Msg("shutting down HTTP server")

	// Fresh context since ctx is already done
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.log.Info().Msg("HTTP server stopped gracefully")
	return <-errCh
}
