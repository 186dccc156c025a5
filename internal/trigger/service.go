// Package trigger fires periodic full re-runs: on each cron tick every known
// user gets a run request enqueued. Execution happens in the runner; this
// service is trigger-only.
package trigger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dayflow/internal/runner"
	"dayflow/internal/storage"
	logx "dayflow/pkg/logx"
)

const defaultSpec = "0 3 * * *"

type Config struct {
	Enabled  bool
	Spec     string // cron spec; default "0 3 * * *"
	Timezone string // IANA TZ; empty = local
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	store  storage.Store
	runner *runner.Service

	parser cron.Parser
	c      *cron.Cron
}

func New(cfg Config, run *runner.Service, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		store:  store,
		runner: run,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// ValidateSpec checks a cron spec without scheduling it (used by config validation).
func (s *Service) ValidateSpec(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	_, err := s.parser.Parse(spec)
	return err
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.cfg.Spec != cfg.Spec || s.cfg.Timezone != cfg.Timezone || s.cfg.Enabled != cfg.Enabled
	s.cfg = cfg
	if s.c == nil || !changed {
		return
	}
	s.restartLocked()
}

func (s *Service) Start(ctx context.Context) error {
	_ = ctx // reserved for context-driven stop policies

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if !s.cfg.Enabled {
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return err
		}
		loc = l
	}

	spec := strings.TrimSpace(s.cfg.Spec)
	if spec == "" {
		spec = defaultSpec
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	c.Schedule(sched, cron.FuncJob(s.fire))
	c.Start()
	s.c = c

	s.log.Info("trigger started", logx.String("spec", spec), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) restartLocked() {
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
	if !s.cfg.Enabled {
		s.log.Info("trigger disabled")
		return
	}
	if err := s.startLocked(); err != nil {
		s.log.Error("trigger restart failed", logx.Err(err))
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("trigger stopped")
}

// fire enqueues one run per known user. Queue-full and already-pending are
// normal under load; the next tick catches up.
func (s *Service) fire() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		s.log.Warn("trigger: listing users failed", logx.Err(err))
		return
	}

	enq := 0
	for _, u := range users {
		err := s.runner.Enqueue(runner.Request{UserID: u, Reason: "cron"})
		switch {
		case err == nil:
			enq++
		case errors.Is(err, runner.ErrAlreadyRuns):
		case errors.Is(err, runner.ErrQueueFull):
			s.log.Warn("trigger: queue full", logx.String("user", u))
		default:
			s.log.Warn("trigger: enqueue failed", logx.String("user", u), logx.Err(err))
		}
	}
	s.log.Debug("trigger fired", logx.Int("users", len(users)), logx.Int("enqueued", enq))
}
