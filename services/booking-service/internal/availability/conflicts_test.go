package availability

import (
	"testing"
	"time"
)

func TestFilterConflicts_BufferPadding(t *testing.T) {
	d, _ := ParseDate("2025-03-03")
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	grid := Grid(d, time.UTC, rule(0, "09:00", "12:00"), 30*time.Minute, 15*time.Minute)

	booked := []Interval{{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)}}
	got := clocks(FilterConflicts(grid, booked, 15*time.Minute, nil), time.UTC)
	want := []string{"09:00", "11:15"}
	if !equalStrings(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestFilterConflicts_AdjacentIsFree(t *testing.T) {
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	cands := []Interval{
		{Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 30*time.Minute)},
		{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)},
	}
	booked := []Interval{{Start: day.Add(9*time.Hour + 30*time.Minute), End: day.Add(10 * time.Hour)}}

	got := FilterConflicts(cands, booked, 0, nil)
	if len(got) != 2 {
		t.Fatalf("touching intervals must not conflict, got %d slots", len(got))
	}
}

func TestFilterConflicts_ExternalBlocksUnpadded(t *testing.T) {
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	cands := []Interval{
		{Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 30*time.Minute)},
		{Start: day.Add(9*time.Hour + 45*time.Minute), End: day.Add(10*time.Hour + 15*time.Minute)},
	}
	external := []Interval{{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)}}

	got := clocks(FilterConflicts(cands, nil, time.Hour, external), time.UTC)
	if !equalStrings(got, []string{"09:00"}) {
		t.Fatalf("got %v", got)
	}
}

func TestConflicts(t *testing.T) {
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	booked := []Interval{{Start: day.Add(10 * time.Hour), End: day.Add(10*time.Hour + 30*time.Minute)}}

	before := Interval{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)}
	inside := Interval{Start: day.Add(9*time.Hour + 20*time.Minute), End: day.Add(9*time.Hour + 50*time.Minute)}
	if Conflicts(before, booked, 15*time.Minute, nil) {
		t.Fatalf("slot ending exactly at padded start should be free")
	}
	if !Conflicts(inside, booked, 15*time.Minute, nil) {
		t.Fatalf("slot reaching into the buffer should conflict")
	}
}
