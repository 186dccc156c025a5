package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("x", "90m")
	if err != nil || d != 90*time.Minute {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", "  "); err != nil || d != 0 {
		t.Fatalf("blank should be zero, got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("expected error for junk duration")
	}
	if _, err := ParseDurationField("x", "-5m"); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestManagerParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./dayflow.db
engine:
  horizon: 168h
  max_candidates: 5
runner:
  workers: 2
trigger:
  enabled: true
  spec: "0 3 * * *"
api:
  enabled: true
  addr: "127.0.0.1:9999"
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Engine.Horizon != "168h" || cfg.Engine.MaxCandidates != 5 {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
	if cfg.API.Addr != "127.0.0.1:9999" {
		t.Fatalf("api addr = %q", cfg.API.Addr)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestManagerParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: info
  verbosity: extreme
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestManagerParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"logging":{"level":"warn","console":false,"file":{"enabled":false,"path":""}},"storage":{"driver":"memory","path":""}}`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Logging.Level != "warn" || cfg.Storage.Driver != "memory" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		return &Config{
			Storage: StorageConfig{Driver: "sqlite", Path: "x.db"},
		}
	}

	if err := Validate(base()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"bad horizon", func(c *Config) { c.Engine.Horizon = "fortnight" }},
		{"negative candidates", func(c *Config) { c.Engine.MaxCandidates = -1 }},
		{"negative weight", func(c *Config) { c.Engine.Weights = &WeightsConfig{Energy: -0.1} }},
		{"weights above one", func(c *Config) {
			c.Engine.Weights = &WeightsConfig{Energy: 0.5, DayPart: 0.4, Due: 0.3, Earliness: 0.1}
		}},
		{"negative workers", func(c *Config) { c.Runner.Workers = -1 }},
		{"bad api timeout", func(c *Config) { c.API.ReadTimeout = "later" }},
		{"negative rate", func(c *Config) { c.API.RatePerSec = -2 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
