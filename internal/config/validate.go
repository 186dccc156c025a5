package config

import (
	"fmt"
	"strings"
)

// Validate checks cross-field consistency that the strict decoder cannot
// express. It is used both at startup and as the hot-reload validator.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	switch strings.TrimSpace(cfg.Storage.Driver) {
	case "", "sqlite", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}

	if _, err := ParseDurationField("engine.horizon", cfg.Engine.Horizon); err != nil {
		return err
	}
	if _, err := ParseDurationField("engine.due_lead", cfg.Engine.DueLead); err != nil {
		return err
	}
	if cfg.Engine.MaxCandidates < 0 {
		return fmt.Errorf("engine.max_candidates: must be >= 0")
	}
	if w := cfg.Engine.Weights; w != nil {
		for name, v := range map[string]float64{
			"energy": w.Energy, "day_part": w.DayPart, "due": w.Due, "earliness": w.Earliness,
		} {
			if v < 0 {
				return fmt.Errorf("engine.weights.%s: must be >= 0", name)
			}
		}
		if sum := w.Energy + w.DayPart + w.Due + w.Earliness; sum > 1.0+1e-9 {
			return fmt.Errorf("engine.weights: components sum to %.3f, max is 1.0", sum)
		}
	}

	if cfg.Runner.Workers < 0 || cfg.Runner.QueueSize < 0 || cfg.Runner.HistorySize < 0 {
		return fmt.Errorf("runner: workers/queue_size/history_size must be >= 0")
	}

	for _, f := range []struct{ path, raw string }{
		{"api.read_timeout", cfg.API.ReadTimeout},
		{"api.write_timeout", cfg.API.WriteTimeout},
		{"api.idle_timeout", cfg.API.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if cfg.API.RatePerSec < 0 {
		return fmt.Errorf("api.rate_per_sec: must be >= 0")
	}

	if cfg.Pprof.MutexProfileFraction < 0 || cfg.Pprof.BlockProfileRate < 0 {
		return fmt.Errorf("pprof: profile rates must be >= 0")
	}

	return nil
}
