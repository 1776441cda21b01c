// ABOUTME: Side HTTP server with liveness, readiness and Prometheus endpoints
// ABOUTME: Started with the gateway when server.http_addr is configured

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/recgate/internal/config"
)

// Handler returns the side HTTP handler.
func (s *Server) Handler(cfg *config.Config) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	}
	return mux
}

// HTTPAddr returns the side server address, or nil when it is not running.
func (s *Server) HTTPAddr() net.Addr {
	s.httpMu.Lock()
	defer s.httpMu.Unlock()
	return s.httpAddr
}

func (s *Server) startHTTP(cfg *config.Config) {
	if cfg.Server.HTTPAddr == "" {
		return
	}
	s.httpMu.Lock()
	defer s.httpMu.Unlock()
	if s.httpServer != nil {
		return
	}

	ln, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		s.logger.Error("side http server disabled", "addr", cfg.Server.HTTPAddr, "error", err)
		return
	}
	srv := &http.Server{
		Handler:           s.Handler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv
	s.httpAddr = ln.Addr()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("side http server failed", "error", err)
		}
	}()
	s.logger.Info("side http server listening", "addr", ln.Addr().String())
}

func (s *Server) stopHTTP() {
	s.httpMu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.httpAddr = nil
	s.httpMu.Unlock()
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn("side http shutdown", "error", err)
	}
}

// handleHealth returns 200 OK if the process is alive.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the gateway is started and has a backend.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	n := s.reg.Size()
	switch {
	case !s.accept.IsStarted():
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("gateway stopped"))
	case n == 0:
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no backends bound"))
	default:
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "ready (%d backends)", n)
	}
}
