package engine

import (
	"sort"
	"time"
)

// Index is the authoritative record, for one scheduling run, of which instants
// are unavailable for a given user. It combines the recurring work window
// (work days + work hours) with a canonical, sorted, non-overlapping set of
// busy intervals. Intervals closer together than the buffer are merged, since
// the gap between them can never hold a placement anyway.
//
// Index is not safe for concurrent use; a run owns its index exclusively.
type Index struct {
	loc      *time.Location
	workDays [7]bool
	dayStart int
	dayEnd   int
	buffer   time.Duration

	// anchors are extra candidate start hours inside the work window: energy
	// window starts and the day-part boundaries. Without them a free day
	// yields only its earliest start, and a mid-day energy window could never
	// attract a placement.
	anchors []int

	busy []Interval // sorted by Start, pairwise gaps > buffer
}

// anchorHours collects the interesting start hours strictly inside the work
// window, deduplicated and sorted.
func anchorHours(set Settings) []int {
	const afternoonStart, eveningStart = 12, 17

	cand := []int{afternoonStart, eveningStart}
	for _, r := range []*HourRange{set.HighEnergy, set.MediumEnergy, set.LowEnergy} {
		if r != nil {
			cand = append(cand, r.Start)
		}
	}

	seen := make(map[int]bool, len(cand))
	var out []int
	for _, h := range cand {
		if h > set.WorkHourStart && h < set.WorkHourEnd && !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	sort.Ints(out)
	return out
}

// NewIndex builds the index from validated settings and the caller-supplied
// external busy intervals (synced calendars plus locked tasks). The input may
// be unsorted and overlapping; zero-length and inverted intervals are ignored.
func NewIndex(set Settings, busy []Interval) (*Index, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	loc, err := set.Location()
	if err != nil {
		return nil, err
	}

	x := &Index{
		loc:      loc,
		dayStart: set.WorkHourStart,
		dayEnd:   set.WorkHourEnd,
		buffer:   set.Buffer,
	}
	for _, d := range set.WorkDays {
		x.workDays[int(d)] = true
	}
	x.anchors = anchorHours(set)

	ivs := make([]Interval, 0, len(busy))
	for _, iv := range busy {
		if iv.End.After(iv.Start) {
			ivs = append(ivs, iv)
		}
	}
	sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start.Before(ivs[j].Start) })

	for _, iv := range ivs {
		n := len(x.busy)
		if n > 0 && !iv.Start.After(x.busy[n-1].End.Add(x.buffer)) {
			if iv.End.After(x.busy[n-1].End) {
				x.busy[n-1].End = iv.End
			}
			continue
		}
		x.busy = append(x.busy, iv)
	}
	return x, nil
}

// IsFree reports whether [start,end) lies entirely inside a single work day's
// work-hour window and keeps at least the buffer away from every busy interval.
func (x *Index) IsFree(start, end time.Time) bool {
	if !end.After(start) {
		return false
	}
	win, ok := x.dayWindow(start)
	if !ok {
		return false
	}
	if start.Before(win.Start) || end.After(win.End) {
		return false
	}
	return !x.blocked(start, end)
}

// blocked reports whether [start,end) comes within buffer of any busy interval.
func (x *Index) blocked(start, end time.Time) bool {
	qs := start.Add(-x.buffer)
	qe := end.Add(x.buffer)
	i := sort.Search(len(x.busy), func(i int) bool { return x.busy[i].End.After(qs) })
	return i < len(x.busy) && x.busy[i].Start.Before(qe)
}

// Reserve commits [start,end) into the index so subsequent searches in the
// same run see it as busy. Insertion keeps the set sorted and merges neighbors
// that fall within the buffer, so reserving an already-covered interval is a
// no-op.
func (x *Index) Reserve(start, end time.Time) {
	if !end.After(start) {
		return
	}
	iv := Interval{Start: start, End: end}

	// First interval whose end reaches the new interval's buffered start.
	lo := sort.Search(len(x.busy), func(i int) bool {
		return x.busy[i].End.Add(x.buffer).Compare(iv.Start) >= 0
	})
	// One past the last interval whose start touches the buffered end.
	hi := lo
	for hi < len(x.busy) && x.busy[hi].Start.Compare(iv.End.Add(x.buffer)) <= 0 {
		hi++
	}
	for _, b := range x.busy[lo:hi] {
		if b.Start.Before(iv.Start) {
			iv.Start = b.Start
		}
		if b.End.After(iv.End) {
			iv.End = b.End
		}
	}

	merged := make([]Interval, 0, len(x.busy)-(hi-lo)+1)
	merged = append(merged, x.busy[:lo]...)
	merged = append(merged, iv)
	merged = append(merged, x.busy[hi:]...)
	x.busy = merged
}

// NextWorkBoundary fast-forwards from to the nearest instant inside a work
// window: from itself when it already lies inside one, otherwise the start of
// the next work day's window. Settings validation guarantees at least one work
// day, so the scan terminates within a week.
func (x *Index) NextWorkBoundary(from time.Time) time.Time {
	lt := from.In(x.loc)
	for i := 0; i < 8; i++ {
		day := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, x.loc)
		if x.workDays[int(day.Weekday())] {
			ds := day.Add(time.Duration(x.dayStart) * time.Hour)
			de := day.Add(time.Duration(x.dayEnd) * time.Hour)
			if lt.Before(ds) {
				return ds
			}
			if lt.Before(de) {
				return lt
			}
		}
		lt = day.AddDate(0, 0, 1)
	}
	return from
}

// dayWindow returns the work-hour window of t's local day, and whether that
// day is a configured work day.
func (x *Index) dayWindow(t time.Time) (Interval, bool) {
	lt := t.In(x.loc)
	day := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, x.loc)
	if !x.workDays[int(day.Weekday())] {
		return Interval{}, false
	}
	return Interval{
		Start: day.Add(time.Duration(x.dayStart) * time.Hour),
		End:   day.Add(time.Duration(x.dayEnd) * time.Hour),
	}, true
}

// freeWithin returns the maximal free sub-intervals of win, with the buffer
// already carved out around busy intervals. win is assumed to lie inside one
// work window.
func (x *Index) freeWithin(win Interval) []Interval {
	var out []Interval
	cur := win.Start

	i := sort.Search(len(x.busy), func(i int) bool {
		return x.busy[i].End.Add(x.buffer).After(win.Start)
	})
	for ; i < len(x.busy); i++ {
		b := x.busy[i]
		gapEnd := b.Start.Add(-x.buffer)
		if gapEnd.After(win.End) {
			gapEnd = win.End
		}
		if gapEnd.After(cur) {
			out = append(out, Interval{Start: cur, End: gapEnd})
		}
		cur = b.End.Add(x.buffer)
		if !cur.Before(win.End) {
			return out
		}
	}
	if win.End.After(cur) {
		out = append(out, Interval{Start: cur, End: win.End})
	}
	return out
}

// anchorTimes maps the anchor hours onto gap's local day, keeping only
// instants strictly inside the gap, in chronological order.
func (x *Index) anchorTimes(gap Interval) []time.Time {
	if len(x.anchors) == 0 {
		return nil
	}
	lt := gap.Start.In(x.loc)
	var out []time.Time
	for _, h := range x.anchors {
		t := time.Date(lt.Year(), lt.Month(), lt.Day(), h, 0, 0, 0, x.loc)
		if t.After(gap.Start) && t.Before(gap.End) {
			out = append(out, t)
		}
	}
	return out
}

// Buffer exposes the configured minimum spacing; the batch scheduler uses it
// for its post-commit invariant check.
func (x *Index) Buffer() time.Duration { return x.buffer }
