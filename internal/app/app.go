// Package app wires the services together: config, logging, storage, the
// scheduling engine, the run executor, the cron trigger, and the HTTP API.
package app

import (
	"context"
	"strings"
	"time"

	"dayflow/internal/api"
	"dayflow/internal/config"
	"dayflow/internal/engine"
	"dayflow/internal/eventbus"
	"dayflow/internal/observability/pprof"
	"dayflow/internal/runner"
	rtsup "dayflow/internal/runtime/supervisor"
	"dayflow/internal/storage"
	"dayflow/internal/trigger"
	logx "dayflow/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	// storageCfg remembers what the store was opened with, so hot reloads that
	// touch storage can be flagged as restart-required.
	storageCfg storage.Config

	sched *engine.Scheduler
	run   *runner.Service
	trig  *trigger.Service
	api   *api.Server
	prof  *pprof.Service
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	opts, err := mapEngineOptions(cfg)
	if err != nil {
		return nil, err
	}
	sched := engine.New(opts, log.With(logx.String("comp", "engine")))

	runSvc := runner.New(mapRunnerConfig(cfg), sched, store,
		log.With(logx.String("comp", "runner")), bus)

	trigSvc := trigger.New(mapTriggerConfig(cfg), runSvc, store,
		log.With(logx.String("comp", "trigger")))

	apiCfg, err := mapAPIConfig(cfg)
	if err != nil {
		return nil, err
	}
	apiSrv := api.NewServer(apiCfg, runSvc, store, log.With(logx.String("comp", "api")))

	profSvc := pprof.New(mapPprofConfig(cfg), log.With(logx.String("comp", "pprof")))

	return &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		storageCfg: sc,
		sched:      sched,
		run:        runSvc,
		trig:       trigSvc,
		api:        apiSrv,
		prof:       profSvc,
	}, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Runner() *runner.Service { return a.run }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))

	// Transactional hot reload: a config that fails validation is never
	// committed or published.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if tz := strings.TrimSpace(cfg.Trigger.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return err
			}
		}
		return a.trig.ValidateSpec(cfg.Trigger.Spec)
	})

	a.run.Start(a.sup.Context())
	if err := a.trig.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.api.Start(a.sup.Context()); err != nil {
		return err
	}
	if err := a.prof.Start(a.sup.Context()); err != nil {
		a.log.Warn("pprof not started", logx.Err(err))
	}

	// Debug-level event mirror; components also subscribe themselves.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: only the latest config matters.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, newCfg)
			}
		}
	})

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated hot-reloaded config into the live services.
// Everything except storage applies live; the database stays on the config it
// was opened with until restart.
func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a.run.Apply(ctx, mapRunnerConfig(cfg))
	a.trig.Apply(mapTriggerConfig(cfg))

	if opts, err := mapEngineOptions(cfg); err == nil {
		a.sched.Apply(opts)
	}
	if apiCfg, err := mapAPIConfig(cfg); err == nil {
		a.api.Apply(ctx, apiCfg)
	}
	a.prof.Apply(ctx, mapPprofConfig(cfg))

	if sc, err := mapStorageConfig(cfg); err == nil && sc != a.storageCfg {
		a.log.Warn("storage config changed; restart required for it to take effect")
	}

	a.log.Info("config applied")
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup != nil {
		a.sup.Cancel()
	}

	// Outer surfaces first so no new work arrives while the runner drains.
	a.api.Stop(ctx)
	a.trig.Stop(ctx)
	a.run.Stop(ctx)
	a.prof.Stop(ctx)

	if a.sup != nil {
		_ = a.sup.Wait(ctx)
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
	}
	_ = a.logs.Close()
	return nil
}
