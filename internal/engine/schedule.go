package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	logx "dayflow/pkg/logx"
)

// Scheduler runs one scheduling pass over a batch of tasks for one user.
// It is stateless across runs and safe to share between goroutines.
type Scheduler struct {
	mu   sync.RWMutex
	opts Options
	log  logx.Logger
}

func New(opts Options, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{opts: opts.withDefaults(), log: log}
}

// Apply swaps the search options. In-flight runs keep the options they
// started with.
func (s *Scheduler) Apply(opts Options) {
	s.mu.Lock()
	s.opts = opts.withDefaults()
	s.mu.Unlock()
}

// Request is one user's immutable scheduling snapshot.
type Request struct {
	Tasks    []Task
	Settings Settings
	Busy     []Interval

	// Now anchors the search. Zero means time.Now(); tests pass a fixed
	// instant to keep runs reproducible.
	Now time.Time
}

// Result carries the full task set back: schedulable tasks with fresh
// ScheduledStart/End/Score (or nil when unplaceable), everything else
// unchanged, in the input order.
type Result struct {
	Tasks    []Task
	Placed   int
	Unplaced int
}

// Schedule validates the batch, folds locked-task intervals into the busy
// index, sorts the schedulable tasks, and places them one at a time. Placement
// order is fully deterministic: priority high-to-low, then due date ascending
// (nulls last), then duration ascending, then ID; with GroupByProject the
// sorted order is additionally clustered so a project's tasks stay adjacent,
// anchored where its best-ranked task sorted.
//
// A task with no feasible slot is left with nil schedule fields and the batch
// continues. Returned errors are limited to invalid input, context
// cancellation (checked between task placements), and invariant violations.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (Result, error) {
	if err := req.Settings.Validate(); err != nil {
		return Result{}, err
	}

	s.mu.RLock()
	opts := s.opts
	s.mu.RUnlock()

	out := make([]Task, len(req.Tasks))
	copy(out, req.Tasks)

	var order []int
	for i, t := range out {
		if !t.schedulable() {
			continue
		}
		if t.ID == "" {
			return Result{}, invalidInput("task at index %d has empty id", i)
		}
		if t.Duration <= 0 {
			return Result{}, invalidInput("task %s: duration must be positive", t.ID)
		}
		order = append(order, i)
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	// Locked tasks keep their interval and occupy the index as busy time.
	busy := make([]Interval, 0, len(req.Busy)+4)
	busy = append(busy, req.Busy...)
	for _, t := range out {
		if t.Locked && t.ScheduledStart != nil && t.ScheduledEnd != nil {
			busy = append(busy, Interval{Start: *t.ScheduledStart, End: *t.ScheduledEnd})
		}
	}

	idx, err := NewIndex(req.Settings, busy)
	if err != nil {
		return Result{}, err
	}
	scorer, err := NewScorer(req.Settings, opts)
	if err != nil {
		return Result{}, err
	}

	sortBatch(out, order, req.Settings.GroupByProject)

	var res Result
	var committed []Interval
	for _, i := range order {
		// Safe cancellation point: between tasks, never mid-placement.
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		t := &out[i]
		cands := FindCandidates(idx, *t, now, opts)
		if len(cands) == 0 {
			t.ScheduledStart, t.ScheduledEnd, t.Score = nil, nil, nil
			res.Unplaced++
			s.log.Debug("no feasible slot", logx.String("task", t.ID), logx.Duration("duration", t.Duration))
			continue
		}

		best := 0
		bestScore := scorer.Score(*t, cands[0], 0, len(cands))
		for r := 1; r < len(cands); r++ {
			// Strict improvement only: ties resolve to the earliest start.
			if sc := scorer.Score(*t, cands[r], r, len(cands)); sc > bestScore {
				best, bestScore = r, sc
			}
		}

		slot := Interval{Start: cands[best].Start.UTC(), End: cands[best].End.UTC()}
		if other, clash := conflictsCommitted(committed, slot, idx.Buffer()); clash {
			return Result{}, &InvariantError{TaskID: t.ID, Slot: slot, Other: other}
		}
		idx.Reserve(slot.Start, slot.End)
		committed = insertInterval(committed, slot)

		start, end, score := slot.Start, slot.End, bestScore
		t.ScheduledStart, t.ScheduledEnd, t.Score = &start, &end, &score
		res.Placed++
	}

	res.Tasks = out
	return res, nil
}

// sortBatch orders the schedulable indices in place.
func sortBatch(tasks []Task, order []int, groupByProject bool) {
	sort.SliceStable(order, func(a, b int) bool {
		return placeBefore(tasks[order[a]], tasks[order[b]])
	})
	if groupByProject {
		clusterByProject(tasks, order)
	}
}

func placeBefore(a, b Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	switch {
	case a.DueDate != nil && b.DueDate != nil:
		if !a.DueDate.Equal(*b.DueDate) {
			return a.DueDate.Before(*b.DueDate)
		}
	case a.DueDate != nil:
		return true
	case b.DueDate != nil:
		return false
	}
	// Shorter tasks first to reduce fragmentation.
	if a.Duration != b.Duration {
		return a.Duration < b.Duration
	}
	return a.ID < b.ID
}

// clusterByProject keeps tasks sharing a project adjacent, anchored at the
// position where the project's best-ranked task sorted.
func clusterByProject(tasks []Task, order []int) {
	seen := make(map[string]bool)
	out := make([]int, 0, len(order))
	for i, ix := range order {
		p := tasks[ix].ProjectID
		if p == "" {
			out = append(out, ix)
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, ix)
		for _, jx := range order[i+1:] {
			if tasks[jx].ProjectID == p {
				out = append(out, jx)
			}
		}
	}
	copy(order, out)
}

// conflictsCommitted checks a fresh slot against everything this run already
// committed, buffer included. committed is sorted by start.
func conflictsCommitted(committed []Interval, slot Interval, buffer time.Duration) (Interval, bool) {
	i := sort.Search(len(committed), func(i int) bool {
		return committed[i].End.Add(buffer).After(slot.Start)
	})
	if i < len(committed) && committed[i].Start.Add(-buffer).Before(slot.End) {
		return committed[i], true
	}
	return Interval{}, false
}

func insertInterval(ivs []Interval, iv Interval) []Interval {
	i := sort.Search(len(ivs), func(i int) bool { return ivs[i].Start.After(iv.Start) })
	ivs = append(ivs, Interval{})
	copy(ivs[i+1:], ivs[i:])
	ivs[i] = iv
	return ivs
}
