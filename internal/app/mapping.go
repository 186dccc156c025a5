package app

import (
	"dayflow/internal/api"
	"dayflow/internal/config"
	"dayflow/internal/engine"
	"dayflow/internal/observability/pprof"
	"dayflow/internal/runner"
	"dayflow/internal/storage"
	"dayflow/internal/trigger"
)

// Mapping helpers translate the file config (string durations, optional
// fields) into typed service configs. Each service applies its own defaults
// for zero values.

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	bt, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: bt,
	}, nil
}

func mapEngineOptions(cfg *config.Config) (engine.Options, error) {
	horizon, err := config.ParseDurationField("engine.horizon", cfg.Engine.Horizon)
	if err != nil {
		return engine.Options{}, err
	}
	lead, err := config.ParseDurationField("engine.due_lead", cfg.Engine.DueLead)
	if err != nil {
		return engine.Options{}, err
	}
	opts := engine.Options{
		Horizon:       horizon,
		MaxCandidates: cfg.Engine.MaxCandidates,
		DueLead:       lead,
	}
	if w := cfg.Engine.Weights; w != nil {
		opts.Weights = engine.Weights{
			Energy:    w.Energy,
			DayPart:   w.DayPart,
			Due:       w.Due,
			Earliness: w.Earliness,
		}
	}
	return opts, nil
}

func mapRunnerConfig(cfg *config.Config) runner.Config {
	enabled := true
	if cfg.Runner.Enabled != nil {
		enabled = *cfg.Runner.Enabled
	}
	return runner.Config{
		Enabled:     enabled,
		Workers:     cfg.Runner.Workers,
		QueueSize:   cfg.Runner.QueueSize,
		HistorySize: cfg.Runner.HistorySize,
	}
}

func mapTriggerConfig(cfg *config.Config) trigger.Config {
	return trigger.Config{
		Enabled:  cfg.Trigger.Enabled,
		Spec:     cfg.Trigger.Spec,
		Timezone: cfg.Trigger.Timezone,
	}
}

func mapAPIConfig(cfg *config.Config) (api.Config, error) {
	rt, err := config.ParseDurationField("api.read_timeout", cfg.API.ReadTimeout)
	if err != nil {
		return api.Config{}, err
	}
	wt, err := config.ParseDurationField("api.write_timeout", cfg.API.WriteTimeout)
	if err != nil {
		return api.Config{}, err
	}
	it, err := config.ParseDurationField("api.idle_timeout", cfg.API.IdleTimeout)
	if err != nil {
		return api.Config{}, err
	}
	return api.Config{
		Enabled:        cfg.API.Enabled,
		Addr:           cfg.API.Addr,
		RatePerSec:     float64(cfg.API.RatePerSec),
		AllowedOrigins: cfg.API.AllowedOrigins,
		ReadTimeout:    rt,
		WriteTimeout:   wt,
		IdleTimeout:    it,
	}, nil
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled:              cfg.Pprof.Enabled,
		Addr:                 cfg.Pprof.Addr,
		Prefix:               cfg.Pprof.Prefix,
		Token:                cfg.Pprof.Token,
		AllowInsecure:        cfg.Pprof.AllowInsecure,
		MutexProfileFraction: cfg.Pprof.MutexProfileFraction,
		BlockProfileRate:     cfg.Pprof.BlockProfileRate,
	}
}
