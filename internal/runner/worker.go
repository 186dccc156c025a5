package runner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dayflow/internal/engine"
	"dayflow/internal/eventbus"
	"dayflow/internal/storage"
	logx "dayflow/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan Request) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case req, ok := <-queue:
			if !ok {
				return
			}
			atomic.AddInt32(&s.inFlight, 1)
			s.runOne(ctx, req)
			atomic.AddInt32(&s.inFlight, -1)
		}
	}
}

// runOne executes one full scheduling pass for one user:
// settings → reset phase → task/busy snapshot → engine → persist → publish.
func (s *Service) runOne(ctx context.Context, req Request) {
	defer s.release(req.UserID)

	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	start := time.Now()
	ev := RunEvent{
		RunID:   uuid.NewString(),
		UserID:  req.UserID,
		Reason:  req.Reason,
		Started: start,
	}
	s.publish("run.started", ev)

	runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	res, err := s.executeRun(runCtx, req.UserID, start, cfg.Window)
	ev.Duration = time.Since(start)

	if err != nil {
		ev.Error = err.Error()
		s.log.Warn("run failed", logx.String("user", req.UserID), logx.String("run", ev.RunID), logx.Err(err), logx.Duration("dur", ev.Duration))
		s.publish("run.failed", ev)
	} else {
		ev.Placed = res.Placed
		ev.Unplaced = res.Unplaced
		s.log.Info("run completed",
			logx.String("user", req.UserID), logx.String("run", ev.RunID),
			logx.Int("placed", res.Placed), logx.Int("unplaced", res.Unplaced),
			logx.Duration("dur", ev.Duration))
		s.publish("run.completed", ev)
	}

	rec := storage.RunRecord{
		ID:        ev.RunID,
		UserID:    ev.UserID,
		StartedAt: ev.Started,
		TookMS:    ev.Duration.Milliseconds(),
		Placed:    ev.Placed,
		Unplaced:  ev.Unplaced,
		Error:     ev.Error,
	}
	if err := s.store.AppendRun(ctx, rec); err != nil {
		s.log.Warn("run record not persisted", logx.String("run", ev.RunID), logx.Err(err))
	}

	s.recordHistory(ev)
}

func (s *Service) executeRun(ctx context.Context, userID string, now time.Time, window time.Duration) (engine.Result, error) {
	set, err := s.store.GetSettings(ctx, userID)
	if err != nil {
		return engine.Result{}, err
	}

	// Reset phase of the documented two-phase contract: clear stale schedule
	// fields before snapshotting, so the engine sees a clean slate and locked
	// tasks remain the only authoritative placements.
	if err := s.store.ResetSchedules(ctx, userID); err != nil {
		return engine.Result{}, err
	}

	tasks, err := s.store.ListTasks(ctx, userID)
	if err != nil {
		return engine.Result{}, err
	}

	// Include intervals that started earlier but are still running.
	busy, err := s.store.ListBusy(ctx, userID, set.SelectedCalendars, now.Add(-24*time.Hour), now.Add(window))
	if err != nil {
		return engine.Result{}, err
	}

	res, err := s.sched.Schedule(ctx, engine.Request{
		Tasks:    tasks,
		Settings: set,
		Busy:     busy,
		Now:      now,
	})
	if err != nil {
		return engine.Result{}, err
	}

	if err := s.store.SavePlacements(ctx, userID, res.Tasks); err != nil {
		return engine.Result{}, err
	}
	return res, nil
}

func (s *Service) publish(typ string, ev RunEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
}
