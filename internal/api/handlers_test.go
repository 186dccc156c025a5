package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dayflow/internal/engine"
	"dayflow/internal/runner"
	"dayflow/internal/storage"
	logx "dayflow/pkg/logx"
)

func newTestServer(t *testing.T, store storage.Store, runCfg runner.Config) (*Server, *runner.Service) {
	t.Helper()
	sched := engine.New(engine.Options{}, logx.Nop())
	run := runner.New(runCfg, sched, store, logx.Nop(), nil)
	srv := NewServer(Config{Enabled: true}, run, store, logx.Nop())
	return srv, run
}

func TestHealth(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, storage.NewMemory(), runner.Config{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestScheduleRun(t *testing.T) {
	t.Parallel()
	srv, run := newTestServer(t, storage.NewMemory(), runner.Config{Enabled: true, Workers: 1})
	run.Start(context.Background())
	defer run.Stop(context.Background())
	h := srv.Handler()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"accepted", `{"user_id":"u1"}`, http.StatusAccepted},
		{"missing user", `{}`, http.StatusBadRequest},
		{"invalid json", `{"user_id":`, http.StatusBadRequest},
		{"unknown field", `{"user_id":"u2","force":true}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/schedule/run", strings.NewReader(tt.body))
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/schedule/run", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want 405", rec.Code)
	}
}

func TestScheduleRunDisabledRunner(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, storage.NewMemory(), runner.Config{Enabled: false})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/schedule/run", strings.NewReader(`{"user_id":"u"}`))
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	started := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := store.AppendRun(context.Background(), storage.RunRecord{
			ID: "r" + string(rune('0'+i)), UserID: "u", StartedAt: started.Add(time.Duration(i) * time.Hour),
			Placed: i,
		})
		if err != nil {
			t.Fatalf("AppendRun error: %v", err)
		}
	}
	srv, _ := newTestServer(t, store, runner.Config{})
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/schedule/runs?user_id=u&limit=2", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	var got []runRecordDTO
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].ID != "r2" {
		t.Fatalf("runs = %+v, want newest first, limit 2", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/schedule/runs", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user_id status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/schedule/runs?user_id=u&limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()
	srv, run := newTestServer(t, storage.NewMemory(), runner.Config{Enabled: true, Workers: 2})
	run.Start(context.Background())
	defer run.Stop(context.Background())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/schedule/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Enabled || got.Workers != 2 {
		t.Fatalf("status = %+v", got)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	store := storage.NewMemory()
	sched := engine.New(engine.Options{}, logx.Nop())
	run := runner.New(runner.Config{}, sched, store, logx.Nop(), nil)
	srv := NewServer(Config{Enabled: true, RatePerSec: 0.001, Burst: 1}, run, store, logx.Nop())
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
}
