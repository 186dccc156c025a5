package engine

import (
	"testing"
	"time"
)

// Monday 2025-01-06, a plain work week in UTC.
func day(d int, hour, min int) time.Time {
	return time.Date(2025, 1, 6+d, hour, min, 0, 0, time.UTC)
}

func testSettings() Settings {
	s := DefaultSettings()
	return s
}

func TestNewIndexMergesWithinBuffer(t *testing.T) {
	t.Parallel()
	// 10:00-10:30 and 10:40-11:00 sit 10m apart, inside the 15m buffer.
	x, err := NewIndex(testSettings(), []Interval{
		{Start: day(0, 10, 40), End: day(0, 11, 0)},
		{Start: day(0, 10, 0), End: day(0, 10, 30)},
	})
	if err != nil {
		t.Fatalf("NewIndex error: %v", err)
	}
	if len(x.busy) != 1 {
		t.Fatalf("busy = %v, want single merged interval", x.busy)
	}
	got := x.busy[0]
	if !got.Start.Equal(day(0, 10, 0)) || !got.End.Equal(day(0, 11, 0)) {
		t.Fatalf("merged = [%v,%v), want [10:00,11:00)", got.Start, got.End)
	}
}

func TestNewIndexDropsInvertedIntervals(t *testing.T) {
	t.Parallel()
	x, err := NewIndex(testSettings(), []Interval{
		{Start: day(0, 11, 0), End: day(0, 10, 0)},
		{Start: day(0, 12, 0), End: day(0, 12, 0)},
	})
	if err != nil {
		t.Fatalf("NewIndex error: %v", err)
	}
	if len(x.busy) != 0 {
		t.Fatalf("busy = %v, want empty", x.busy)
	}
}

func TestIsFree(t *testing.T) {
	t.Parallel()
	x, err := NewIndex(testSettings(), []Interval{
		{Start: day(0, 10, 0), End: day(0, 11, 0)},
	})
	if err != nil {
		t.Fatalf("NewIndex error: %v", err)
	}

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"inside free window", day(0, 13, 0), day(0, 14, 0), true},
		{"overlaps busy", day(0, 10, 30), day(0, 11, 30), false},
		{"within buffer after busy", day(0, 11, 5), day(0, 12, 0), false},
		{"exactly buffer after busy", day(0, 11, 15), day(0, 12, 0), true},
		{"within buffer before busy", day(0, 9, 0), day(0, 9, 50), false},
		{"before work hours", day(0, 8, 0), day(0, 8, 30), false},
		{"past work hours", day(0, 16, 30), day(0, 17, 30), false},
		{"weekend", day(5, 10, 0), day(5, 11, 0), false}, // Saturday
		{"zero length", day(0, 13, 0), day(0, 13, 0), false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := x.IsFree(tt.start, tt.end); got != tt.want {
				t.Fatalf("IsFree(%v,%v) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestReserveMergesNeighbors(t *testing.T) {
	t.Parallel()
	x, err := NewIndex(testSettings(), []Interval{
		{Start: day(0, 9, 0), End: day(0, 10, 0)},
		{Start: day(0, 13, 0), End: day(0, 14, 0)},
	})
	if err != nil {
		t.Fatalf("NewIndex error: %v", err)
	}

	// 10:10 is inside the buffer after the first interval.
	x.Reserve(day(0, 10, 10), day(0, 11, 0))
	if len(x.busy) != 2 {
		t.Fatalf("busy = %v, want 2 intervals", x.busy)
	}
	if !x.busy[0].Start.Equal(day(0, 9, 0)) || !x.busy[0].End.Equal(day(0, 11, 0)) {
		t.Fatalf("first = [%v,%v), want [09:00,11:00)", x.busy[0].Start, x.busy[0].End)
	}

	// Bridging both remaining intervals collapses everything.
	x.Reserve(day(0, 11, 10), day(0, 12, 50))
	if len(x.busy) != 1 {
		t.Fatalf("busy = %v, want 1 interval", x.busy)
	}
	if !x.busy[0].Start.Equal(day(0, 9, 0)) || !x.busy[0].End.Equal(day(0, 14, 0)) {
		t.Fatalf("merged = [%v,%v), want [09:00,14:00)", x.busy[0].Start, x.busy[0].End)
	}
}

func TestReserveKeepsOrderForDistantInsert(t *testing.T) {
	t.Parallel()
	x, err := NewIndex(testSettings(), []Interval{
		{Start: day(1, 9, 0), End: day(1, 10, 0)},
	})
	if err != nil {
		t.Fatalf("NewIndex error: %v", err)
	}
	x.Reserve(day(0, 9, 0), day(0, 10, 0))
	if len(x.busy) != 2 {
		t.Fatalf("busy = %v, want 2 intervals", x.busy)
	}
	if !x.busy[0].Start.Equal(day(0, 9, 0)) {
		t.Fatalf("busy not sorted: %v", x.busy)
	}
}

func TestNextWorkBoundary(t *testing.T) {
	t.Parallel()
	x, err := NewIndex(testSettings(), nil)
	if err != nil {
		t.Fatalf("NewIndex error: %v", err)
	}

	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"inside window", day(0, 11, 0), day(0, 11, 0)},
		{"before hours", day(0, 6, 0), day(0, 9, 0)},
		{"after hours", day(0, 18, 0), day(1, 9, 0)},
		{"friday evening skips weekend", day(4, 18, 0), day(7, 9, 0)},
		{"saturday", day(5, 12, 0), day(7, 9, 0)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := x.NextWorkBoundary(tt.from); !got.Equal(tt.want) {
				t.Fatalf("NextWorkBoundary(%v) = %v, want %v", tt.from, got, tt.want)
			}
		})
	}
}

func TestFreeWithinCarvesBuffer(t *testing.T) {
	t.Parallel()
	x, err := NewIndex(testSettings(), []Interval{
		{Start: day(0, 10, 0), End: day(0, 11, 0)},
	})
	if err != nil {
		t.Fatalf("NewIndex error: %v", err)
	}
	win := Interval{Start: day(0, 9, 0), End: day(0, 17, 0)}
	gaps := x.freeWithin(win)
	if len(gaps) != 2 {
		t.Fatalf("gaps = %v, want 2", gaps)
	}
	if !gaps[0].Start.Equal(day(0, 9, 0)) || !gaps[0].End.Equal(day(0, 9, 45)) {
		t.Fatalf("gap[0] = [%v,%v), want [09:00,09:45)", gaps[0].Start, gaps[0].End)
	}
	if !gaps[1].Start.Equal(day(0, 11, 15)) || !gaps[1].End.Equal(day(0, 17, 0)) {
		t.Fatalf("gap[1] = [%v,%v), want [11:15,17:00)", gaps[1].Start, gaps[1].End)
	}
}

func TestFreeWithinFullyBlocked(t *testing.T) {
	t.Parallel()
	x, err := NewIndex(testSettings(), []Interval{
		{Start: day(0, 8, 0), End: day(0, 18, 0)},
	})
	if err != nil {
		t.Fatalf("NewIndex error: %v", err)
	}
	gaps := x.freeWithin(Interval{Start: day(0, 9, 0), End: day(0, 17, 0)})
	if len(gaps) != 0 {
		t.Fatalf("gaps = %v, want none", gaps)
	}
}

func TestNewIndexRejectsInvalidSettings(t *testing.T) {
	t.Parallel()
	bad := testSettings()
	bad.WorkHourStart = 17
	bad.WorkHourEnd = 9
	if _, err := NewIndex(bad, nil); err == nil {
		t.Fatal("expected error for inverted work hours")
	}
}
