package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"dayflow/internal/engine"
)

// Memory is an in-process Store. It backs tests and demo setups; data is lost
// on restart. The Put*/Add* seed methods are not part of the Store interface.
type Memory struct {
	mu       sync.RWMutex
	settings map[string]engine.Settings
	tasks    map[string]map[string]engine.Task
	busy     map[string][]busyRow
	runs     map[string][]RunRecord
}

type busyRow struct {
	calendar string
	interval engine.Interval
}

func NewMemory() *Memory {
	return &Memory{
		settings: map[string]engine.Settings{},
		tasks:    map[string]map[string]engine.Task{},
		busy:     map[string][]busyRow{},
		runs:     map[string][]RunRecord{},
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) PutSettings(userID string, set engine.Settings) {
	m.mu.Lock()
	m.settings[userID] = set
	m.mu.Unlock()
}

func (m *Memory) PutTask(userID string, t engine.Task) {
	m.mu.Lock()
	if m.tasks[userID] == nil {
		m.tasks[userID] = map[string]engine.Task{}
	}
	m.tasks[userID][t.ID] = t
	m.mu.Unlock()
}

func (m *Memory) AddBusy(userID, calendarID string, iv engine.Interval) {
	m.mu.Lock()
	m.busy[userID] = append(m.busy[userID], busyRow{calendar: calendarID, interval: iv})
	m.mu.Unlock()
}

func (m *Memory) GetSettings(_ context.Context, userID string) (engine.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if set, ok := m.settings[userID]; ok {
		return set, nil
	}
	return engine.DefaultSettings(), nil
}

func (m *Memory) ListTasks(_ context.Context, userID string) ([]engine.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.Task, 0, len(m.tasks[userID]))
	for _, t := range m.tasks[userID] {
		if t.Status == engine.StatusCompleted {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListBusy(_ context.Context, userID string, calendars []string, from, to time.Time) ([]engine.Interval, error) {
	if len(calendars) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(calendars))
	for _, c := range calendars {
		want[c] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []engine.Interval
	for _, row := range m.busy[userID] {
		if !want[row.calendar] {
			continue
		}
		if row.interval.End.After(from) && row.interval.Start.Before(to) {
			out = append(out, row.interval)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *Memory) ResetSchedules(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tasks[userID] {
		if t.Locked || !t.AutoScheduled || t.Status == engine.StatusCompleted {
			continue
		}
		t.ScheduledStart, t.ScheduledEnd, t.Score = nil, nil, nil
		m.tasks[userID][id] = t
	}
	return nil
}

func (m *Memory) SavePlacements(_ context.Context, userID string, tasks []engine.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tasks {
		if t.Locked {
			continue
		}
		cur, ok := m.tasks[userID][t.ID]
		if !ok || cur.Locked {
			continue
		}
		cur.ScheduledStart, cur.ScheduledEnd, cur.Score = t.ScheduledStart, t.ScheduledEnd, t.Score
		m.tasks[userID][t.ID] = cur
	}
	return nil
}

func (m *Memory) AppendRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	m.runs[rec.UserID] = append(m.runs[rec.UserID], rec)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListRuns(_ context.Context, userID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.runs[userID]
	out := make([]RunRecord, 0, limit)
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	for u := range m.settings {
		seen[u] = true
	}
	for u := range m.tasks {
		seen[u] = true
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}
