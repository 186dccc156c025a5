package engine

import (
	"fmt"
	"time"
)

// Priority orders tasks within a batch. Higher schedules first.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// ParsePriority accepts the wire names "low", "medium", "high".
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	default:
		return PriorityLow, fmt.Errorf("unknown priority %q", s)
	}
}

// EnergyTier is a coarse classification of hours of day (and of the focus a
// task needs). TierNone means "unclassified" for hours and "no requirement"
// for tasks.
type EnergyTier uint8

const (
	TierNone EnergyTier = iota
	TierLow
	TierMedium
	TierHigh
)

func (t EnergyTier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return "none"
	}
}

// ParseEnergyTier accepts "", "none", "low", "medium", "high".
func ParseEnergyTier(s string) (EnergyTier, error) {
	switch s {
	case "", "none":
		return TierNone, nil
	case "low":
		return TierLow, nil
	case "medium":
		return TierMedium, nil
	case "high":
		return TierHigh, nil
	default:
		return TierNone, fmt.Errorf("unknown energy tier %q", s)
	}
}

// DayPart buckets local hours of day: morning <12:00, afternoon 12:00-17:00,
// evening >=17:00. AnyTime means no preference.
type DayPart uint8

const (
	AnyTime DayPart = iota
	Morning
	Afternoon
	Evening
)

func (d DayPart) String() string {
	switch d {
	case Morning:
		return "morning"
	case Afternoon:
		return "afternoon"
	case Evening:
		return "evening"
	default:
		return "any"
	}
}

// ParseDayPart accepts "", "any", "morning", "afternoon", "evening".
func ParseDayPart(s string) (DayPart, error) {
	switch s {
	case "", "any":
		return AnyTime, nil
	case "morning":
		return Morning, nil
	case "afternoon":
		return Afternoon, nil
	case "evening":
		return Evening, nil
	default:
		return AnyTime, fmt.Errorf("unknown day part %q", s)
	}
}

// dayPartOf buckets a local hour.
func dayPartOf(hour int) DayPart {
	switch {
	case hour < 12:
		return Morning
	case hour < 17:
		return Afternoon
	default:
		return Evening
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Task is the scheduling-relevant snapshot of one task.
//
// ScheduledStart/End/Score are the engine's output for schedulable tasks. For
// locked tasks they are authoritative input: the existing interval is folded
// into the busy index and the task passes through unchanged.
type Task struct {
	ID        string
	ProjectID string

	Duration  time.Duration
	DueDate   *time.Time
	StartDate *time.Time // not-before constraint

	Priority  Priority
	Energy    EnergyTier // required tier; TierNone = no requirement
	Preferred DayPart

	AutoScheduled bool
	Locked        bool
	Status        Status

	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	Score          *float64
}

// schedulable reports whether the engine may assign this task a new slot.
func (t Task) schedulable() bool {
	return t.AutoScheduled && !t.Locked && t.Status != StatusCompleted
}

// HourRange is a half-open [Start,End) hour-of-day range.
type HourRange struct {
	Start int
	End   int
}

func (r HourRange) Contains(hour int) bool { return hour >= r.Start && hour < r.End }

func (r HourRange) valid() bool {
	return r.Start >= 0 && r.End <= 24 && r.Start < r.End
}

// Settings is one user's auto-scheduling configuration.
type Settings struct {
	WorkDays      []time.Weekday
	WorkHourStart int // inclusive hour of day
	WorkHourEnd   int // exclusive hour of day
	Buffer        time.Duration
	Timezone      string // IANA name; empty means UTC

	// Energy windows. Nil means the tier is unused. Overlaps resolve
	// high > medium > low (see Profile.TierAt).
	HighEnergy   *HourRange
	MediumEnergy *HourRange
	LowEnergy    *HourRange

	GroupByProject bool

	// SelectedCalendars is carried for the persistence layer, which resolves
	// busy intervals for these feeds before invoking the engine. The engine
	// itself never reads it.
	SelectedCalendars []string
}

// DefaultSettings returns the documented defaults: Mon-Fri, 9-17, 15m buffer,
// energy windows unset.
func DefaultSettings() Settings {
	return Settings{
		WorkDays:      []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		WorkHourStart: 9,
		WorkHourEnd:   17,
		Buffer:        15 * time.Minute,
	}
}

// Location resolves the configured timezone (UTC when empty).
func (s Settings) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, invalidInput("timezone %q: %v", s.Timezone, err)
	}
	return loc, nil
}

// Validate rejects malformed settings before any processing.
func (s Settings) Validate() error {
	if len(s.WorkDays) == 0 {
		return invalidInput("work days empty")
	}
	for _, d := range s.WorkDays {
		if d < time.Sunday || d > time.Saturday {
			return invalidInput("work day %d out of range", d)
		}
	}
	if s.WorkHourStart < 0 || s.WorkHourEnd > 24 || s.WorkHourStart >= s.WorkHourEnd {
		return invalidInput("work hours [%d,%d) invalid", s.WorkHourStart, s.WorkHourEnd)
	}
	if s.Buffer < 0 {
		return invalidInput("buffer must be >= 0")
	}
	windows := []struct {
		name string
		r    *HourRange
	}{{"high", s.HighEnergy}, {"medium", s.MediumEnergy}, {"low", s.LowEnergy}}
	for _, w := range windows {
		if w.r != nil && !w.r.valid() {
			return invalidInput("%s energy window [%d,%d) invalid", w.name, w.r.Start, w.r.End)
		}
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	return nil
}

// Interval is a half-open [Start,End) UTC time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (iv Interval) Duration() time.Duration { return iv.End.Sub(iv.Start) }

func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

// Candidate is one feasible placement proposed by the slot finder.
type Candidate struct {
	Start time.Time
	End   time.Time
}

// Weights are the additive score components. They should sum to at most 1.0;
// the defaults mirror the documented model (0.4/0.3/0.2/0.1).
type Weights struct {
	Energy    float64
	DayPart   float64
	Due       float64
	Earliness float64
}

func DefaultWeights() Weights {
	return Weights{Energy: 0.4, DayPart: 0.3, Due: 0.2, Earliness: 0.1}
}

// Options are engine-level knobs, independent of per-user settings.
type Options struct {
	// Horizon bounds the forward search for any single task.
	Horizon time.Duration
	// MaxCandidates caps the candidates scored per task.
	MaxCandidates int
	// DueLead is how far before the due date a slot still earns the full
	// due-urgency weight; credit decays linearly to zero at the due date.
	DueLead time.Duration

	Weights Weights
}

func (o Options) withDefaults() Options {
	if o.Horizon <= 0 {
		o.Horizon = 14 * 24 * time.Hour
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = 10
	}
	if o.DueLead <= 0 {
		o.DueLead = 24 * time.Hour
	}
	if o.Weights == (Weights{}) {
		o.Weights = DefaultWeights()
	}
	return o
}
