package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dayflow/internal/engine"
	logx "dayflow/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) GetSettings(ctx context.Context, userID string) (engine.Settings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT work_days, work_hour_start, work_hour_end, buffer_minutes, timezone,
		        high_start, high_end, medium_start, medium_end, low_start, low_end,
		        group_by_project, selected_calendars
		 FROM settings WHERE user_id = ?`, userID)

	var (
		days, tz, cals               string
		hourStart, hourEnd, bufMin   int
		hiS, hiE, meS, meE, loS, loE sql.NullInt64
		groupByProject               bool
	)
	err := row.Scan(&days, &hourStart, &hourEnd, &bufMin, &tz,
		&hiS, &hiE, &meS, &meE, &loS, &loE, &groupByProject, &cals)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.DefaultSettings(), nil
	}
	if err != nil {
		return engine.Settings{}, err
	}

	set := engine.Settings{
		WorkHourStart:     hourStart,
		WorkHourEnd:       hourEnd,
		Buffer:            time.Duration(bufMin) * time.Minute,
		Timezone:          tz,
		GroupByProject:    groupByProject,
		SelectedCalendars: splitCSV(cals),
		HighEnergy:        hourRange(hiS, hiE),
		MediumEnergy:      hourRange(meS, meE),
		LowEnergy:         hourRange(loS, loE),
	}
	for _, f := range splitCSV(days) {
		n, err := strconv.Atoi(f)
		if err != nil {
			return engine.Settings{}, fmt.Errorf("settings for %s: bad work day %q", userID, f)
		}
		set.WorkDays = append(set.WorkDays, time.Weekday(n))
	}
	return set, nil
}

func (s *sqliteStore) ListTasks(ctx context.Context, userID string) ([]engine.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, duration_minutes, due_at, start_after, priority, energy,
		        preferred, auto_scheduled, locked, status, scheduled_start, scheduled_end, score
		 FROM tasks WHERE user_id = ? AND status != ? ORDER BY id`, userID, string(engine.StatusCompleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Task
	for rows.Next() {
		var (
			t                  engine.Task
			durMin             int
			due, after, st, en sql.NullString
			prio, energy, pref string
			status             string
			score              sql.NullFloat64
		)
		if err := rows.Scan(&t.ID, &t.ProjectID, &durMin, &due, &after, &prio, &energy,
			&pref, &t.AutoScheduled, &t.Locked, &status, &st, &en, &score); err != nil {
			return nil, err
		}
		t.Duration = time.Duration(durMin) * time.Minute
		t.Status = engine.Status(status)
		if t.Priority, err = engine.ParsePriority(prio); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
		if t.Energy, err = engine.ParseEnergyTier(energy); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
		if t.Preferred, err = engine.ParseDayPart(pref); err != nil {
			return nil, fmt.Errorf("task %s: %w", t.ID, err)
		}
		if t.DueDate, err = parseNullTime(due); err != nil {
			return nil, fmt.Errorf("task %s due_at: %w", t.ID, err)
		}
		if t.StartDate, err = parseNullTime(after); err != nil {
			return nil, fmt.Errorf("task %s start_after: %w", t.ID, err)
		}
		if t.ScheduledStart, err = parseNullTime(st); err != nil {
			return nil, fmt.Errorf("task %s scheduled_start: %w", t.ID, err)
		}
		if t.ScheduledEnd, err = parseNullTime(en); err != nil {
			return nil, fmt.Errorf("task %s scheduled_end: %w", t.ID, err)
		}
		if score.Valid {
			v := score.Float64
			t.Score = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListBusy(ctx context.Context, userID string, calendars []string, from, to time.Time) ([]engine.Interval, error) {
	if len(calendars) == 0 {
		return nil, nil
	}
	q := `SELECT start_at, end_at FROM busy_intervals
	      WHERE user_id = ? AND end_at > ? AND start_at < ? AND calendar_id IN (?` +
		strings.Repeat(",?", len(calendars)-1) + `) ORDER BY start_at`
	args := make([]any, 0, len(calendars)+3)
	args = append(args, userID, from.UTC().Format(time.RFC3339Nano), to.UTC().Format(time.RFC3339Nano))
	for _, c := range calendars {
		args = append(args, c)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Interval
	for rows.Next() {
		var st, en string
		if err := rows.Scan(&st, &en); err != nil {
			return nil, err
		}
		iv, err := parseInterval(st, en)
		if err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ResetSchedules(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET scheduled_start = NULL, scheduled_end = NULL, score = NULL
		 WHERE user_id = ? AND locked = 0 AND auto_scheduled = 1 AND status != ?`,
		userID, string(engine.StatusCompleted))
	return err
}

func (s *sqliteStore) SavePlacements(ctx context.Context, userID string, tasks []engine.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE tasks SET scheduled_start = ?, scheduled_end = ?, score = ?
		 WHERE id = ? AND user_id = ? AND locked = 0`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range tasks {
		if t.Locked {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			formatNullTime(t.ScheduledStart), formatNullTime(t.ScheduledEnd), nullFloat(t.Score),
			t.ID, userID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendRun(ctx context.Context, rec RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, user_id, started_at, took_ms, placed, unplaced, err)
		 VALUES(?,?,?,?,?,?,?)`,
		rec.ID, rec.UserID, rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.TookMS, rec.Placed, rec.Unplaced, rec.Error)
	return err
}

func (s *sqliteStore) ListRuns(ctx context.Context, userID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, started_at, took_ms, placed, unplaced, err
		 FROM runs WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started string
		if err := rows.Scan(&rec.ID, &rec.UserID, &started, &rec.TookMS, &rec.Placed, &rec.Unplaced, &rec.Error); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, err
		}
		rec.StartedAt = ts
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM settings UNION SELECT user_id FROM tasks ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ---- encoding helpers ----

func splitCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hourRange(start, end sql.NullInt64) *engine.HourRange {
	if !start.Valid || !end.Valid {
		return nil
	}
	return &engine.HourRange{Start: int(start.Int64), End: int(end.Int64)}
}

func parseNullTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func parseInterval(st, en string) (engine.Interval, error) {
	start, err := time.Parse(time.RFC3339Nano, st)
	if err != nil {
		return engine.Interval{}, err
	}
	end, err := time.Parse(time.RFC3339Nano, en)
	if err != nil {
		return engine.Interval{}, err
	}
	return engine.Interval{Start: start, End: end}, nil
}
