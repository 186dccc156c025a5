// Package pprof serves Go's runtime profiles over HTTP for live diagnosis of
// slow scheduling runs. Disabled by default; binding beyond loopback requires
// a token or an explicit insecure opt-in.
package pprof

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"strings"
	"sync"
	"time"

	logx "dayflow/pkg/logx"
)

type Config struct {
	Enabled       bool
	Addr          string // default "127.0.0.1:6060"
	Prefix        string // default "/debug/pprof/"
	Token         string
	AllowInsecure bool

	MutexProfileFraction int
	BlockProfileRate     int
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	srv      *http.Server
	stopDone chan struct{}
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps the config and restarts the server when its wire-visible
// settings changed. Profiling rates apply even while the server is disabled.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	applyRuntimeRates(cfg)

	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.srv != nil
	s.mu.Unlock()

	if prev.Enabled == cfg.Enabled && prev.Addr == cfg.Addr &&
		prev.Prefix == cfg.Prefix && prev.Token == cfg.Token &&
		prev.AllowInsecure == cfg.AllowInsecure {
		return
	}
	if running {
		s.Stop(ctx)
	}
	if cfg.Enabled {
		if err := s.Start(ctx); err != nil {
			s.log.Warn("pprof restart failed", logx.Err(err))
		}
	}
}

func applyRuntimeRates(cfg Config) {
	// 0 keeps the Go defaults.
	if cfg.MutexProfileFraction > 0 {
		runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	}
	if cfg.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	}
}

// Start is idempotent. It refuses a non-loopback bind without a token unless
// AllowInsecure is set.
func (s *Service) Start(ctx context.Context) error {
	_ = ctx

	s.mu.Lock()
	if !s.cfg.Enabled || s.srv != nil {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	s.mu.Unlock()

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:6060"
	}
	if !cfg.AllowInsecure && cfg.Token == "" && !isLoopbackAddr(addr) {
		return errors.New("pprof: non-loopback addr requires token or allow_insecure")
	}
	if cfg.AllowInsecure && cfg.Token == "" && !isLoopbackAddr(addr) {
		s.log.Warn("pprof bound to non-loopback addr without token", logx.String("addr", addr))
	}

	applyRuntimeRates(cfg)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler(cfg),
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  time.Minute,
		// No WriteTimeout: CPU profiles stream for their full duration.
	}

	s.mu.Lock()
	s.srv = srv
	s.stopDone = make(chan struct{})
	done := s.stopDone
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.log.Info("pprof listening", logx.String("addr", addr), logx.Bool("token_set", cfg.Token != ""))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("pprof server failed", logx.Err(err))
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) {
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
		_ = srv.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
	s.log.Info("pprof stopped")
}

func (s *Service) handler(cfg Config) http.Handler {
	prefix := normalizePrefix(cfg.Prefix)
	base := strings.TrimSuffix(prefix, "/")

	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withToken(cfg.Token, h) }

	mux.HandleFunc(prefix, wrap(pprofIndexAt(prefix)))
	mux.HandleFunc(base+"/cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc(base+"/profile", wrap(hpprof.Profile))
	mux.HandleFunc(base+"/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc(base+"/trace", wrap(hpprof.Trace))
	return mux
}

// withToken accepts either "Authorization: Bearer <token>" or ?token=.
func withToken(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		if ah := r.Header.Get("Authorization"); ah != "" {
			const p = "Bearer "
			if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				h(w, r)
				return
			}
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// net/http/pprof's Index expects to be rooted at /debug/pprof/; rewrite the
// path so custom prefixes work without forking the package.
func pprofIndexAt(prefix string) http.HandlerFunc {
	canon := normalizePrefix(prefix)
	return func(w http.ResponseWriter, r *http.Request) {
		suffix := strings.TrimPrefix(r.URL.Path, canon)
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + suffix
		hpprof.Index(w, r2)
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
