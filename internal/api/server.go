// Package api exposes the scheduling engine over HTTP: trigger runs, inspect
// run history and runner status. JSON in, JSON out.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/cors"

	"dayflow/internal/runner"
	"dayflow/internal/storage"
	logx "dayflow/pkg/logx"
)

type Config struct {
	Enabled        bool
	Addr           string // default ":8080"
	RatePerSec     float64
	Burst          int
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

func withDefaults(cfg Config) Config {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8484"
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return cfg
}

// Server is the HTTP front for the runner and run history.
type Server struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	run   *runner.Service
	store storage.Store

	srv      *http.Server
	stopDone chan struct{}
}

func NewServer(cfg Config, run *runner.Service, store storage.Store, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:   withDefaults(cfg),
		log:   log,
		run:   run,
		store: store,
	}
}

// Handler builds the full middleware-wrapped mux. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/schedule/run", s.handleRun)
	mux.HandleFunc("/api/schedule/runs", s.handleRuns)
	mux.HandleFunc("/api/schedule/status", s.handleStatus)

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	var h http.Handler = mux
	h = s.withRateLimit(h, cfg.RatePerSec, cfg.Burst)
	h = c.Handler(h)
	h = s.withAccessLog(h)
	return h
}

// Apply swaps the config; if the bind address or enable flag changed while
// running, the server restarts on the new address.
func (s *Server) Apply(ctx context.Context, cfg Config) {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.srv != nil
	s.mu.Unlock()

	if prev.Addr == cfg.Addr && prev.Enabled == cfg.Enabled {
		return
	}
	if running {
		s.Stop(ctx)
	}
	if cfg.Enabled {
		_ = s.Start(ctx)
	}
}

// Start is idempotent. The listener runs in its own goroutine; bind errors
// after Start surface in the log.
func (s *Server) Start(ctx context.Context) error {
	_ = ctx

	s.mu.Lock()
	if !s.cfg.Enabled || s.srv != nil {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	s.srv = srv
	s.stopDone = make(chan struct{})
	done := s.stopDone
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.log.Info("api listening", logx.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server failed", logx.Err(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	done := s.stopDone
	s.srv = nil
	s.stopDone = nil
	s.mu.Unlock()

	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn("api shutdown", logx.Err(err))
		_ = srv.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	s.log.Info("api stopped")
}
