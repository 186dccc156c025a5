package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	logx "dayflow/pkg/logx"
)

func newTestScheduler(opts Options) *Scheduler {
	return New(opts, logx.Nop())
}

func TestScheduleHappyPath(t *testing.T) {
	t.Parallel()
	set := testSettings()
	set.HighEnergy = &HourRange{Start: 9, End: 12}

	due := day(2, 17, 0)
	req := Request{
		Tasks: []Task{{
			ID:            "t1",
			Duration:      time.Hour,
			DueDate:       &due,
			Priority:      PriorityHigh,
			Energy:        TierHigh,
			Preferred:     Morning,
			AutoScheduled: true,
			Status:        StatusPending,
		}},
		Settings: set,
		Now:      day(0, 7, 0),
	}

	res, err := newTestScheduler(Options{}).Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if res.Placed != 1 || res.Unplaced != 0 {
		t.Fatalf("placed/unplaced = %d/%d, want 1/0", res.Placed, res.Unplaced)
	}

	got := res.Tasks[0]
	if got.ScheduledStart == nil || got.ScheduledEnd == nil || got.Score == nil {
		t.Fatal("schedule fields not set")
	}
	if !got.ScheduledStart.Equal(day(0, 9, 0)) || !got.ScheduledEnd.Equal(day(0, 10, 0)) {
		t.Fatalf("slot = [%v,%v), want Monday [09:00,10:00)", got.ScheduledStart, got.ScheduledEnd)
	}
	// Morning high-energy slot well before due: every component at full weight.
	if !almost(*got.Score, 1.0) {
		t.Fatalf("score = %v, want 1.0", *got.Score)
	}
}

func TestScheduleRespectsBusyAndBuffer(t *testing.T) {
	t.Parallel()
	req := Request{
		Tasks: []Task{
			{ID: "a", Duration: time.Hour, AutoScheduled: true, Status: StatusPending},
			{ID: "b", Duration: time.Hour, AutoScheduled: true, Status: StatusPending},
		},
		Settings: testSettings(),
		Busy:     []Interval{{Start: day(0, 10, 0), End: day(0, 11, 0)}},
		Now:      day(0, 8, 0),
	}

	res, err := newTestScheduler(Options{}).Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if res.Placed != 2 {
		t.Fatalf("placed = %d, want 2", res.Placed)
	}

	buffer := 15 * time.Minute
	busy := Interval{Start: day(0, 10, 0), End: day(0, 11, 0)}
	var slots []Interval
	for _, task := range res.Tasks {
		slot := Interval{Start: *task.ScheduledStart, End: *task.ScheduledEnd}
		padded := Interval{Start: busy.Start.Add(-buffer), End: busy.End.Add(buffer)}
		if slot.Overlaps(padded) {
			t.Fatalf("task %s slot [%v,%v) violates buffer around busy", task.ID, slot.Start, slot.End)
		}
		slots = append(slots, slot)
	}
	a, b := slots[0], slots[1]
	if a.Overlaps(Interval{Start: b.Start.Add(-buffer), End: b.End.Add(buffer)}) {
		t.Fatalf("placed slots too close: [%v,%v) and [%v,%v)", a.Start, a.End, b.Start, b.End)
	}
}

func TestScheduleUnplaceableLeavesNilFields(t *testing.T) {
	t.Parallel()
	req := Request{
		Tasks: []Task{{ID: "t", Duration: time.Hour, AutoScheduled: true, Status: StatusPending}},
		Settings: testSettings(),
		// Everything blocked through the 48h horizon.
		Busy: []Interval{{Start: day(0, 0, 0), End: day(3, 0, 0)}},
		Now:  day(0, 8, 0),
	}
	res, err := newTestScheduler(Options{Horizon: 48 * time.Hour}).Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if res.Placed != 0 || res.Unplaced != 1 {
		t.Fatalf("placed/unplaced = %d/%d, want 0/1", res.Placed, res.Unplaced)
	}
	got := res.Tasks[0]
	if got.ScheduledStart != nil || got.ScheduledEnd != nil || got.Score != nil {
		t.Fatal("unplaceable task must keep nil schedule fields")
	}
}

func TestSchedulePrefersEnergyWindow(t *testing.T) {
	t.Parallel()
	set := testSettings()
	set.HighEnergy = &HourRange{Start: 14, End: 16}

	req := Request{
		Tasks: []Task{{
			ID: "deep", Duration: time.Hour, Energy: TierHigh,
			AutoScheduled: true, Status: StatusPending,
		}},
		Settings: set,
		Now:      day(0, 8, 0),
	}
	res, err := newTestScheduler(Options{}).Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if res.Placed != 1 {
		t.Fatalf("placed = %d, want 1", res.Placed)
	}
	hour := res.Tasks[0].ScheduledStart.UTC().Hour()
	if hour < 14 || hour >= 16 {
		t.Fatalf("start hour = %d, want inside the 14-16 high-energy window", hour)
	}
}

func TestScheduleLockedTasksUntouched(t *testing.T) {
	t.Parallel()
	lockStart, lockEnd := day(0, 9, 0), day(0, 12, 0)
	lockScore := 0.75
	req := Request{
		Tasks: []Task{
			{
				ID: "locked", Duration: 3 * time.Hour,
				AutoScheduled: true, Locked: true, Status: StatusPending,
				ScheduledStart: &lockStart, ScheduledEnd: &lockEnd, Score: &lockScore,
			},
			{ID: "free", Duration: time.Hour, AutoScheduled: true, Status: StatusPending},
		},
		Settings: testSettings(),
		Now:      day(0, 8, 0),
	}
	res, err := newTestScheduler(Options{}).Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	locked := res.Tasks[0]
	if !locked.ScheduledStart.Equal(lockStart) || !locked.ScheduledEnd.Equal(lockEnd) || *locked.Score != lockScore {
		t.Fatal("locked task fields changed")
	}

	free := res.Tasks[1]
	if free.ScheduledStart == nil {
		t.Fatal("free task not placed")
	}
	slot := Interval{Start: *free.ScheduledStart, End: *free.ScheduledEnd}
	padded := Interval{Start: lockStart.Add(-15 * time.Minute), End: lockEnd.Add(15 * time.Minute)}
	if slot.Overlaps(padded) {
		t.Fatalf("free slot [%v,%v) collides with locked interval", slot.Start, slot.End)
	}
}

func TestScheduleSkipsCompletedAndManual(t *testing.T) {
	t.Parallel()
	req := Request{
		Tasks: []Task{
			{ID: "done", Duration: time.Hour, AutoScheduled: true, Status: StatusCompleted},
			{ID: "manual", Duration: time.Hour, AutoScheduled: false, Status: StatusPending},
			{ID: "live", Duration: time.Hour, AutoScheduled: true, Status: StatusPending},
		},
		Settings: testSettings(),
		Now:      day(0, 8, 0),
	}
	res, err := newTestScheduler(Options{}).Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if res.Placed != 1 {
		t.Fatalf("placed = %d, want only the schedulable task", res.Placed)
	}
	if res.Tasks[0].ScheduledStart != nil || res.Tasks[1].ScheduledStart != nil {
		t.Fatal("non-schedulable tasks must pass through unchanged")
	}
	if res.Tasks[2].ScheduledStart == nil {
		t.Fatal("schedulable task not placed")
	}
}

func TestSchedulePriorityOrder(t *testing.T) {
	t.Parallel()
	req := Request{
		Tasks: []Task{
			{ID: "low", Duration: time.Hour, Priority: PriorityLow, AutoScheduled: true, Status: StatusPending},
			{ID: "high", Duration: time.Hour, Priority: PriorityHigh, AutoScheduled: true, Status: StatusPending},
			{ID: "med", Duration: time.Hour, Priority: PriorityMedium, AutoScheduled: true, Status: StatusPending},
		},
		Settings: testSettings(),
		Now:      day(0, 8, 0),
	}
	res, err := newTestScheduler(Options{}).Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if res.Placed != 3 {
		t.Fatalf("placed = %d, want 3", res.Placed)
	}
	start := func(id string) time.Time {
		for _, task := range res.Tasks {
			if task.ID == id {
				return *task.ScheduledStart
			}
		}
		t.Fatalf("task %s missing", id)
		return time.Time{}
	}
	if !start("high").Before(start("med")) || !start("med").Before(start("low")) {
		t.Fatalf("priority order violated: high=%v med=%v low=%v",
			start("high"), start("med"), start("low"))
	}
}

func TestScheduleDueDateBreaksPriorityTies(t *testing.T) {
	t.Parallel()
	dueSoon := day(1, 17, 0)
	dueLater := day(4, 17, 0)
	req := Request{
		Tasks: []Task{
			{ID: "later", Duration: time.Hour, DueDate: &dueLater, AutoScheduled: true, Status: StatusPending},
			{ID: "none", Duration: time.Hour, AutoScheduled: true, Status: StatusPending},
			{ID: "soon", Duration: time.Hour, DueDate: &dueSoon, AutoScheduled: true, Status: StatusPending},
		},
		Settings: testSettings(),
		Now:      day(0, 8, 0),
	}
	res, err := newTestScheduler(Options{}).Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	start := func(id string) time.Time {
		for _, task := range res.Tasks {
			if task.ID == id {
				return *task.ScheduledStart
			}
		}
		t.Fatalf("task %s missing", id)
		return time.Time{}
	}
	if !start("soon").Before(start("later")) {
		t.Fatal("earlier due date should place first")
	}
	if !start("later").Before(start("none")) {
		t.Fatal("tasks with due dates should place before tasks without")
	}
}

func TestScheduleGroupByProjectClusters(t *testing.T) {
	t.Parallel()
	set := testSettings()
	set.GroupByProject = true
	req := Request{
		Tasks: []Task{
			{ID: "p1a", ProjectID: "p1", Duration: time.Hour, Priority: PriorityHigh, AutoScheduled: true, Status: StatusPending},
			{ID: "solo", Duration: time.Hour, Priority: PriorityMedium, AutoScheduled: true, Status: StatusPending},
			{ID: "p1b", ProjectID: "p1", Duration: time.Hour, Priority: PriorityLow, AutoScheduled: true, Status: StatusPending},
		},
		Settings: set,
		Now:      day(0, 8, 0),
	}
	res, err := newTestScheduler(Options{}).Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	start := func(id string) time.Time {
		for _, task := range res.Tasks {
			if task.ID == id {
				return *task.ScheduledStart
			}
		}
		t.Fatalf("task %s missing", id)
		return time.Time{}
	}
	// p1b rides along with its project anchor even though solo outranks it.
	if !start("p1b").Before(start("solo")) {
		t.Fatalf("project not clustered: p1b=%v solo=%v", start("p1b"), start("solo"))
	}
	if !start("p1a").Before(start("p1b")) {
		t.Fatal("anchor should keep its rank inside the cluster")
	}
}

func TestScheduleDeterministic(t *testing.T) {
	t.Parallel()
	due := day(3, 12, 0)
	req := Request{
		Tasks: []Task{
			{ID: "c", Duration: 90 * time.Minute, Priority: PriorityMedium, AutoScheduled: true, Status: StatusPending},
			{ID: "a", Duration: time.Hour, Priority: PriorityHigh, DueDate: &due, AutoScheduled: true, Status: StatusPending},
			{ID: "b", Duration: time.Hour, Priority: PriorityHigh, DueDate: &due, AutoScheduled: true, Status: StatusPending},
		},
		Settings: testSettings(),
		Busy:     []Interval{{Start: day(0, 13, 0), End: day(0, 14, 0)}},
		Now:      day(0, 8, 0),
	}
	s := newTestScheduler(Options{})
	first, err := s.Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	second, err := s.Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical input produced different output")
	}
}

func TestScheduleInvalidInput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "empty task id",
			req: Request{
				Tasks:    []Task{{Duration: time.Hour, AutoScheduled: true, Status: StatusPending}},
				Settings: testSettings(),
				Now:      day(0, 8, 0),
			},
		},
		{
			name: "non-positive duration",
			req: Request{
				Tasks:    []Task{{ID: "t", AutoScheduled: true, Status: StatusPending}},
				Settings: testSettings(),
				Now:      day(0, 8, 0),
			},
		},
		{
			name: "no work days",
			req: Request{
				Tasks:    []Task{{ID: "t", Duration: time.Hour, AutoScheduled: true, Status: StatusPending}},
				Settings: Settings{WorkHourStart: 9, WorkHourEnd: 17},
				Now:      day(0, 8, 0),
			},
		},
		{
			name: "bad timezone",
			req: Request{
				Tasks: []Task{{ID: "t", Duration: time.Hour, AutoScheduled: true, Status: StatusPending}},
				Settings: func() Settings {
					s := testSettings()
					s.Timezone = "Mars/Olympus"
					return s
				}(),
				Now: day(0, 8, 0),
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestScheduler(Options{}).Schedule(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestScheduleContextCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := Request{
		Tasks:    []Task{{ID: "t", Duration: time.Hour, AutoScheduled: true, Status: StatusPending}},
		Settings: testSettings(),
		Now:      day(0, 8, 0),
	}
	_, err := newTestScheduler(Options{}).Schedule(ctx, req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestScheduleTimezonePlacement(t *testing.T) {
	t.Parallel()
	set := testSettings()
	set.Timezone = "America/New_York"
	req := Request{
		Tasks:    []Task{{ID: "t", Duration: time.Hour, AutoScheduled: true, Status: StatusPending}},
		Settings: set,
		Now:      day(0, 8, 0), // 03:00 in New York
	}
	res, err := newTestScheduler(Options{}).Schedule(context.Background(), req)
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if res.Placed != 1 {
		t.Fatalf("placed = %d, want 1", res.Placed)
	}
	loc, _ := time.LoadLocation("America/New_York")
	localHour := res.Tasks[0].ScheduledStart.In(loc).Hour()
	if localHour != 9 {
		t.Fatalf("local start hour = %d, want 9 (work start in user timezone)", localHour)
	}
}

func TestScheduleInputNotMutated(t *testing.T) {
	t.Parallel()
	tasks := []Task{{ID: "t", Duration: time.Hour, AutoScheduled: true, Status: StatusPending}}
	req := Request{Tasks: tasks, Settings: testSettings(), Now: day(0, 8, 0)}
	if _, err := newTestScheduler(Options{}).Schedule(context.Background(), req); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if tasks[0].ScheduledStart != nil {
		t.Fatal("input slice mutated")
	}
}
