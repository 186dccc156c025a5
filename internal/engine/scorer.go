package engine

import "time"

// Scorer rates candidate slots for tasks on a [0,1] scale, higher is better.
//
// The additive model (weights from Options, defaults 0.4/0.3/0.2/0.1):
//   - energy match: full weight when the slot's tier equals the task's required
//     tier (or the task has none), half weight for an adjacent tier, else 0
//   - time-of-day preference: full weight when the slot's local hour falls in
//     the preferred bucket; tasks without a preference pass automatically
//   - due-date urgency: full weight up to DueLead before the due date, linear
//     decay to 0 at the due date, 0 past it; no due date scores a neutral half
//   - earliness: full weight for the first candidate, decaying toward 0 across
//     the finder's list
type Scorer struct {
	profile Profile
	loc     *time.Location
	opts    Options
}

func NewScorer(set Settings, opts Options) (Scorer, error) {
	loc, err := set.Location()
	if err != nil {
		return Scorer{}, err
	}
	return Scorer{profile: NewProfile(set), loc: loc, opts: opts.withDefaults()}, nil
}

// Score evaluates one candidate. rank is the candidate's position in the
// finder's list (0 = earliest) and total the list length.
func (sc Scorer) Score(t Task, c Candidate, rank, total int) float64 {
	w := sc.opts.Weights
	hour := c.Start.In(sc.loc).Hour()

	var s float64
	s += sc.energyComponent(t, hour, w)

	if t.Preferred == AnyTime || dayPartOf(hour) == t.Preferred {
		s += w.DayPart
	}

	s += sc.dueComponent(t, c, w)

	if total > 0 && rank >= 0 && rank < total {
		s += w.Earliness * float64(total-rank) / float64(total)
	}
	return s
}

func (sc Scorer) energyComponent(t Task, hour int, w Weights) float64 {
	if t.Energy == TierNone {
		return w.Energy
	}
	tier := sc.profile.TierAt(hour)
	switch {
	case tier == t.Energy:
		return w.Energy
	case tier == TierNone:
		return 0
	case tier == t.Energy+1 || t.Energy == tier+1:
		return w.Energy / 2
	default:
		return 0
	}
}

func (sc Scorer) dueComponent(t Task, c Candidate, w Weights) float64 {
	if t.DueDate == nil {
		return w.Due / 2
	}
	due := *t.DueDate
	switch {
	case c.End.After(due):
		return 0
	case !c.End.After(due.Add(-sc.opts.DueLead)):
		return w.Due
	default:
		frac := due.Sub(c.End).Seconds() / sc.opts.DueLead.Seconds()
		return w.Due * frac
	}
}
