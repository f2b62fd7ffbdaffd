// Package service serves random values over HTTP for the inference binary's
// external-api provider.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Thiagojm/fpga_rng_linux/drawlog"
	"github.com/Thiagojm/fpga_rng_linux/source"
)

// Response headers.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderSource    = "X-RNG-Source"
)

// Options configures a Server.
type Options struct {
	Provider source.Provider
	// Sink records every served value; nil disables recording.
	Sink         drawlog.Sink
	Tracker      *Tracker
	Logger       *zap.Logger
	AccessLogger *zap.Logger
	// Now is the clock, for tests.
	Now func() time.Time
}

// Server answers /, /random, /status and /stats.
type Server struct {
	provider source.Provider
	sink     drawlog.Sink
	tracker  *Tracker
	logger   *zap.Logger
	access   *zap.Logger
	now      func() time.Time
	handler  http.Handler
}

// New builds a Server. A nil Provider serves software randomness.
func New(opts Options) *Server {
	if opts.Provider == nil {
		opts.Provider = source.NewRuntime()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Tracker == nil {
		opts.Tracker = NewTracker(opts.Now())
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AccessLogger == nil {
		opts.AccessLogger = zap.NewNop()
	}
	s := &Server{
		provider: opts.Provider,
		sink:     opts.Sink,
		tracker:  opts.Tracker,
		logger:   opts.Logger.Named("service"),
		access:   opts.AccessLogger,
		now:      opts.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /random", s.handleRandom)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /stats", s.handleStats)
	s.handler = s.withRequestID(s.withAccessLog(mux))
	return s
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Tracker returns the request-speed tracker.
func (s *Server) Tracker() *Tracker { return s.tracker }

// ListenAndServe binds addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("rng service listening", zap.String("address", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	s.logger.Info("rng service stopped")
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "RNG Service is running"})
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	s.tracker.Observe(now)

	value, origin := s.provider.Next()
	if s.sink != nil {
		d := drawlog.Draw{Time: now, Value: value, Origin: string(origin)}
		if err := s.sink.Record(r.Context(), d); err != nil {
			s.logger.Warn("record draw failed", zap.Error(err))
		}
	}

	w.Header().Set(HeaderSource, string(origin))
	s.writeJSON(w, http.StatusOK, map[string]float64{"random": value})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.provider.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tracker.Snapshot(s.now()))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
