package storage

import (
	"fmt"
	"strings"

	logx "dayflow/pkg/logx"
)

// Open creates a store for the configured driver.
func Open(cfg Config, log logx.Logger) (Store, error) {
	switch strings.TrimSpace(strings.ToLower(cfg.Driver)) {
	case "", "sqlite":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}
