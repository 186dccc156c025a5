package runner

import (
	"time"
)

// Config controls batch execution.
//
// A single run is inherently sequential (each placement mutates the index the
// next task must see), so parallelism exists only across users: one worker per
// user-batch, pool bounded since the work is CPU-bound.
type Config struct {
	Enabled     bool
	Workers     int           // default: GOMAXPROCS capped at 8
	QueueSize   int           // default: 64
	HistorySize int           // default: 100
	RunTimeout  time.Duration // per-run budget; default: 1m
	// Window bounds how far ahead busy intervals are loaded for a run.
	// It should cover the engine's search horizon. Default: 16 days.
	Window time.Duration
}

// Request asks for one full scheduling pass for one user.
type Request struct {
	UserID string
	Reason string // "api", "cron", ...
}

// RunEvent is the bus payload for run.started / run.completed / run.failed,
// and the history item kept for diagnostics.
type RunEvent struct {
	RunID    string
	UserID   string
	Reason   string
	Started  time.Time
	Duration time.Duration
	Placed   int
	Unplaced int
	Error    string
}

// Snapshot is a point-in-time diagnostic view of the runner.
type Snapshot struct {
	Enabled  bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int
	// Pending counts users with a run queued or executing; it covers the
	// hand-off gap between dequeue and execution that InFlight misses.
	Pending int
	Dropped uint64
	History []RunEvent
}
