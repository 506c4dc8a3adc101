// Package web serves the deserialization endpoints over HTTP.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ppiankov/typegate/internal/engine"
	"github.com/ppiankov/typegate/internal/ratelimit"
)

// Config holds HTTP server configuration.
type Config struct {
	Port   int
	Logger *slog.Logger
}

// Server exposes an engine over HTTP. Insecure routes are registered only when
// the engine allows insecure decodes.
type Server struct {
	eng     *engine.Engine
	logger  *slog.Logger
	limiter *ratelimit.Limiter
	handler http.Handler
	srv     *http.Server
	addr    chan string
}

// NewServer creates a server for eng.
func NewServer(eng *engine.Engine, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{eng: eng, logger: logger, limiter: ratelimit.NewLimiter(), addr: make(chan string, 1)}
	s.handler = s.withRequestLog(s.routes())
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens and serves. Blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.addr <- ln.Addr().String()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	err = s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Addr blocks until Start has bound its listener and returns the address.
func (s *Server) Addr() string {
	a := <-s.addr
	s.addr <- a
	return a
}
