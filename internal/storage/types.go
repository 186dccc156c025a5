package storage

import (
	"context"
	"errors"
	"time"

	"dayflow/internal/engine"
)

var ErrNotFound = errors.New("not found")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process store, data lost on restart
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord summarizes one scheduling run for operator visibility.
type RunRecord struct {
	ID        string
	UserID    string
	StartedAt time.Time
	TookMS    int64
	Placed    int
	Unplaced  int
	Error     string
}

// Store is the snapshot/persistence surface the runner schedules against.
// Task and calendar CRUD belongs to external collaborators sharing the same
// database; the scheduler only reads snapshots and writes placements.
type Store interface {
	// GetSettings returns the user's auto-schedule settings, or the documented
	// defaults when the user has none stored.
	GetSettings(ctx context.Context, userID string) (engine.Settings, error)

	// ListTasks returns the user's non-completed tasks.
	ListTasks(ctx context.Context, userID string) ([]engine.Task, error)

	// ListBusy returns busy intervals for the given calendar feeds overlapping
	// [from,to). An empty feed list yields no intervals.
	ListBusy(ctx context.Context, userID string, calendars []string, from, to time.Time) ([]engine.Interval, error)

	// ResetSchedules clears schedule fields of the user's unlocked,
	// auto-scheduled, non-completed tasks (the reset phase of a full re-run).
	ResetSchedules(ctx context.Context, userID string) error

	// SavePlacements writes ScheduledStart/End/Score for the given tasks.
	// Locked tasks are never touched.
	SavePlacements(ctx context.Context, userID string, tasks []engine.Task) error

	AppendRun(ctx context.Context, rec RunRecord) error
	ListRuns(ctx context.Context, userID string, limit int) ([]RunRecord, error)

	// ListUsers returns every user with stored settings or tasks (used by the
	// periodic trigger to fan out re-runs).
	ListUsers(ctx context.Context) ([]string, error)

	Close() error
}
