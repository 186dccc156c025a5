package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dayflow/internal/engine"
	"dayflow/internal/eventbus"
	rtsup "dayflow/internal/runtime/supervisor"
	"dayflow/internal/storage"
	logx "dayflow/pkg/logx"
)

// Service executes scheduling runs: a bounded worker pool pulls per-user
// requests off a queue, snapshots the user's data, invokes the engine, and
// persists the placements. At most one run per user is queued or in flight at
// a time; duplicates are skipped.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	store storage.Store
	sched *engine.Scheduler

	q        chan Request
	stopCh   chan struct{}
	stopDone chan struct{}
	sup      *rtsup.Supervisor

	// pending tracks users with a queued or running request.
	pendMu  sync.Mutex
	pending map[string]bool

	inFlight int32
	dropped  uint64

	hmu     sync.Mutex
	history []RunEvent
}

func New(cfg Config, sched *engine.Scheduler, store storage.Store, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     withDefaults(cfg),
		log:     log,
		bus:     bus,
		store:   store,
		sched:   sched,
		pending: make(map[string]bool),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
		if cfg.Workers > 8 {
			cfg.Workers = 8
		}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 16 * 24 * time.Hour
	}
	return cfg
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps the config; if core execution settings changed while running,
// the worker pool restarts.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	running := s.stopCh != nil && s.stopDone == nil
	s.mu.Unlock()

	if !running {
		return
	}
	if prev.Workers != cfg.Workers || prev.QueueSize != cfg.QueueSize {
		s.Stop(ctx)
		s.Start(ctx)
	}
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	cfg := s.cfg
	if !cfg.Enabled || s.stopCh != nil {
		s.mu.Unlock()
		return
	}

	s.q = make(chan Request, cfg.QueueSize)
	s.stopCh = make(chan struct{})
	s.stopDone = nil
	stopCh := s.stopCh
	queue := s.q

	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log.With(logx.String("comp", "runner"))))
	sup := s.sup
	s.mu.Unlock()

	for i := 0; i < cfg.Workers; i++ {
		idx := i
		name := fmt.Sprintf("worker.%d", idx)
		// Auto-restart workers if they panic or exit unexpectedly.
		sup.GoRestart(name, func(c context.Context) error {
			s.worker(c, stopCh, queue)
			select {
			case <-stopCh:
				return context.Canceled
			default:
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("worker exited unexpectedly")
		})
	}

	s.log.Info("runner started", logx.Int("workers", cfg.Workers), logx.Int("queue", cap(queue)))
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	close(s.stopCh)
	sup := s.sup
	s.mu.Unlock()

	if sup != nil {
		sup.Cancel()
	}

	go func() {
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		s.q = nil
		s.stopCh = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("runner stopped")
	case <-ctx.Done():
		s.log.Warn("runner stop timed out", logx.Err(ctx.Err()))
	}
}

// Enqueue tries to enqueue a run without blocking. A request for a user that
// is already queued or running is skipped, so bursty triggers collapse into
// one pass.
func (s *Service) Enqueue(req Request) error {
	return s.enqueue(context.Background(), req, false)
}

// Submit enqueues a run and blocks until it is accepted, ctx is canceled, or
// the runner stops.
func (s *Service) Submit(ctx context.Context, req Request) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.enqueue(ctx, req, true)
}

func (s *Service) enqueue(ctx context.Context, req Request, block bool) error {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return fmt.Errorf("user id is required")
	}

	s.mu.Lock()
	cfg := s.cfg
	q := s.q
	stopCh := s.stopCh
	stopping := s.stopDone != nil
	s.mu.Unlock()

	if !cfg.Enabled {
		return ErrDisabled
	}
	if q == nil || stopCh == nil {
		return ErrStopped
	}
	if stopping {
		return ErrStopping
	}

	if !s.tryAcquire(req.UserID) {
		s.log.Debug("run skipped: already pending", logx.String("user", req.UserID), logx.String("reason", req.Reason))
		return ErrAlreadyRuns
	}

	if !block {
		select {
		case q <- req:
			return nil
		default:
			s.release(req.UserID)
			atomic.AddUint64(&s.dropped, 1)
			s.log.Warn("run dropped: queue full", logx.String("user", req.UserID), logx.Int("queue_cap", cap(q)))
			return ErrQueueFull
		}
	}

	select {
	case q <- req:
		return nil
	case <-ctx.Done():
		s.release(req.UserID)
		return ctx.Err()
	case <-stopCh:
		s.release(req.UserID)
		return ErrStopping
	}
}

func (s *Service) tryAcquire(userID string) bool {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	if s.pending[userID] {
		return false
	}
	s.pending[userID] = true
	return true
}

func (s *Service) release(userID string) {
	s.pendMu.Lock()
	delete(s.pending, userID)
	s.pendMu.Unlock()
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	q := s.q
	s.mu.Unlock()

	ql, qc := 0, 0
	if q != nil {
		ql = len(q)
		qc = cap(q)
	}

	s.hmu.Lock()
	h := make([]RunEvent, len(s.history))
	copy(h, s.history)
	s.hmu.Unlock()

	s.pendMu.Lock()
	pending := len(s.pending)
	s.pendMu.Unlock()

	return Snapshot{
		Enabled:  cfg.Enabled,
		Workers:  cfg.Workers,
		QueueLen: ql,
		QueueCap: qc,
		InFlight: int(atomic.LoadInt32(&s.inFlight)),
		Pending:  pending,
		Dropped:  atomic.LoadUint64(&s.dropped),
		History:  h,
	}
}

func (s *Service) recordHistory(ev RunEvent) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, ev)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}
