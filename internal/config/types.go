package config

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`

	// Engine holds scheduling-algorithm knobs shared by every user's runs.
	// Per-user settings (work days/hours, buffer, energy windows) live in
	// storage, not here.
	Engine EngineConfig `json:"engine,omitempty"`

	// Runner controls the per-user batch worker pool.
	Runner RunnerConfig `json:"runner,omitempty"`

	// Trigger controls periodic full re-runs (cron).
	Trigger TriggerConfig `json:"trigger,omitempty"`

	API APIConfig `json:"api,omitempty"`

	// Pprof exposes Go runtime profiles for diagnosing slow runs.
	Pprof PprofConfig `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store, data lost on restart (tests, demos)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// EngineConfig tunes the placement search and score model.
//
// All durations are Go duration strings (e.g. "24h", "336h").
//
// Defaults (when fields are omitted/zero):
//   - horizon: "336h" (14 days)
//   - max_candidates: 10
//   - due_lead: "24h"
//   - weights: energy 0.4, day_part 0.3, due 0.2, earliness 0.1
type EngineConfig struct {
	Horizon       string         `json:"horizon,omitempty"`
	MaxCandidates int            `json:"max_candidates,omitempty"`
	DueLead       string         `json:"due_lead,omitempty"`
	Weights       *WeightsConfig `json:"weights,omitempty"`
}

// WeightsConfig overrides the score model. Components should sum to at most 1.
type WeightsConfig struct {
	Energy    float64 `json:"energy"`
	DayPart   float64 `json:"day_part"`
	Due       float64 `json:"due"`
	Earliness float64 `json:"earliness"`
}

// RunnerConfig controls batch execution.
//
// Defaults (when fields are omitted/zero):
//   - enabled: true (pointer so an explicit false is distinguishable)
//   - workers: GOMAXPROCS, capped at 8 (runs are CPU-bound)
//   - queue_size: 64
//   - history_size: 100
type RunnerConfig struct {
	Enabled     *bool `json:"enabled,omitempty"`
	Workers     int   `json:"workers,omitempty"`
	QueueSize   int   `json:"queue_size,omitempty"`
	HistorySize int   `json:"history_size,omitempty"`
}

// TriggerConfig schedules periodic full re-runs for every known user.
//
// Spec is a standard cron expression (5-field, or 6-field with seconds).
type TriggerConfig struct {
	Enabled  bool   `json:"enabled"`
	Spec     string `json:"spec,omitempty"`     // default: "0 3 * * *"
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Berlin"
}

// APIConfig controls the HTTP trigger/status API.
//
// Security note: there is no authentication layer here; bind to localhost or
// front this with a gateway that owns auth.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Addr           string   `json:"addr,omitempty"` // default: "127.0.0.1:8484"
	RatePerSec     int      `json:"rate_per_sec,omitempty"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// PprofConfig controls the optional profiling server. A non-loopback bind
// requires a token or allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:6060"
	Prefix        string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}
