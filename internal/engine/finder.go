package engine

import "time"

// FindCandidates enumerates feasible start times for one task in increasing
// chronological order, up to opts.MaxCandidates or until the search horizon is
// exhausted. The walk starts at max(now, task.StartDate) and fast-forwards
// across non-work time via NextWorkBoundary. Within each work day every
// sufficiently long free gap contributes its earliest possible start, plus the
// index's anchor hours (energy window starts, day-part boundaries) that fall
// inside the gap, so mid-day windows are reachable even on an empty calendar.
//
// An empty result is the documented "unplaceable" outcome, not an error.
// Given identical inputs the output is identical: the earliest feasible start
// is always first.
func FindCandidates(x *Index, task Task, now time.Time, opts Options) []Candidate {
	opts = opts.withDefaults()
	if task.Duration <= 0 {
		return nil
	}

	from := now
	if task.StartDate != nil && task.StartDate.After(from) {
		from = *task.StartDate
	}
	horizonEnd := from.Add(opts.Horizon)

	var out []Candidate
	add := func(start time.Time) bool {
		out = append(out, Candidate{Start: start, End: start.Add(task.Duration)})
		return len(out) >= opts.MaxCandidates
	}

	cur := x.NextWorkBoundary(from)
	for cur.Before(horizonEnd) && len(out) < opts.MaxCandidates {
		win, ok := x.dayWindow(cur)
		if !ok {
			// NextWorkBoundary only lands on work days; defensive skip.
			cur = x.NextWorkBoundary(startOfNextDay(cur, x.loc))
			continue
		}
		day := win
		if cur.After(day.Start) {
			day.Start = cur
		}
	gaps:
		for _, gap := range x.freeWithin(day) {
			if !gap.Start.Before(horizonEnd) || gap.Duration() < task.Duration {
				continue
			}
			if add(gap.Start) {
				break
			}
			for _, t := range x.anchorTimes(gap) {
				if !t.Before(horizonEnd) {
					break gaps
				}
				if t.Add(task.Duration).After(gap.End) {
					continue
				}
				if add(t) {
					break gaps
				}
			}
		}
		cur = x.NextWorkBoundary(startOfNextDay(win.End, x.loc))
	}
	return out
}

func startOfNextDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}
