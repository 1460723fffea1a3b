package availability

import (
	"math/rand"
	"testing"
	"time"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
)

func rule(day int, start, end string) *model.AvailabilityRule {
	return &model.AvailabilityRule{DayOfWeek: day, StartTime: start, EndTime: end, IsAvailable: true}
}

func clocks(ivs []Interval, loc *time.Location) []string {
	out := make([]string, 0, len(ivs))
	for _, iv := range ivs {
		out = append(out, iv.Start.In(loc).Format("15:04"))
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWeekdayMondayZero(t *testing.T) {
	if got := Weekday(time.Monday); got != 0 {
		t.Fatalf("Monday: got %d", got)
	}
	if got := Weekday(time.Sunday); got != 6 {
		t.Fatalf("Sunday: got %d", got)
	}
	d, _ := ParseDate("2025-03-03")
	if got := DateWeekday(d); got != 0 {
		t.Fatalf("2025-03-03 should be Monday, got %d", got)
	}
}

func TestGrid_SpacingIncludesBuffer(t *testing.T) {
	d, _ := ParseDate("2025-03-03")
	got := clocks(Grid(d, time.UTC, rule(0, "09:00", "12:00"), 30*time.Minute, 15*time.Minute), time.UTC)
	want := []string{"09:00", "09:45", "10:30", "11:15"}
	if !equalStrings(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestGrid_ClosedOrMissingRule(t *testing.T) {
	d, _ := ParseDate("2025-03-03")
	closed := rule(0, "09:00", "17:00")
	closed.IsAvailable = false

	cases := map[string]*model.AvailabilityRule{
		"absent":   nil,
		"closed":   closed,
		"inverted": rule(0, "17:00", "09:00"),
		"equal":    rule(0, "09:00", "09:00"),
	}
	for name, r := range cases {
		if got := Grid(d, time.UTC, r, 30*time.Minute, 0); len(got) != 0 {
			t.Fatalf("%s: expected no slots, got %v", name, clocks(got, time.UTC))
		}
	}
	if got := Grid(d, time.UTC, rule(0, "09:00", "17:00"), 0, 0); len(got) != 0 {
		t.Fatalf("zero duration should yield no slots")
	}
}

func TestGrid_WindowShorterThanDuration(t *testing.T) {
	d, _ := ParseDate("2025-03-03")
	if got := Grid(d, time.UTC, rule(0, "09:00", "09:20"), 30*time.Minute, 0); len(got) != 0 {
		t.Fatalf("expected no slots, got %v", clocks(got, time.UTC))
	}
}

func TestGrid_ClientTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	d, _ := ParseDate("2025-03-03")
	got := Grid(d, ny, rule(0, "09:00", "10:00"), 60*time.Minute, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(got))
	}
	if want := time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC); !got[0].Start.Equal(want) {
		t.Fatalf("got %s, want %s", got[0].Start.UTC(), want)
	}
}

func TestGrid_SpringForwardGap(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	d, _ := ParseDate("2025-03-09")
	got := clocks(Grid(d, ny, rule(6, "01:00", "04:00"), time.Hour, 0), ny)
	want := []string{"01:00", "03:00"}
	if !equalStrings(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestGrid_EverySlotEndsByClose(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	d, _ := ParseDate("2025-03-05")
	for i := 0; i < 500; i++ {
		open := r.Intn(20 * 60)
		closeAt := open + 1 + r.Intn(24*60-open-1)
		rl := rule(2, time.Date(0, 1, 1, open/60, open%60, 0, 0, time.UTC).Format("15:04"),
			time.Date(0, 1, 1, closeAt/60, closeAt%60, 0, 0, time.UTC).Format("15:04"))
		dur := time.Duration(15+r.Intn(120)) * time.Minute
		buf := time.Duration(r.Intn(60)) * time.Minute

		closing := time.Date(2025, 3, 5, closeAt/60, closeAt%60, 0, 0, time.UTC)
		slots := Grid(d, time.UTC, rl, dur, buf)
		for j, s := range slots {
			if s.End.After(closing) {
				t.Fatalf("slot %v ends after close %v", s, closing)
			}
			if j > 0 && s.Start.Sub(slots[j-1].Start) != dur+buf {
				t.Fatalf("unexpected spacing between %v and %v", slots[j-1].Start, s.Start)
			}
		}
	}
}

func TestWithinRule(t *testing.T) {
	r := rule(0, "09:00", "17:00")
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	ok := Interval{Start: day.Add(16*time.Hour + 30*time.Minute), End: day.Add(17 * time.Hour)}
	late := Interval{Start: day.Add(16*time.Hour + 45*time.Minute), End: day.Add(17*time.Hour + 15*time.Minute)}
	early := Interval{Start: day.Add(8*time.Hour + 45*time.Minute), End: day.Add(9*time.Hour + 15*time.Minute)}

	if !WithinRule(ok, time.UTC, r) {
		t.Fatalf("expected interval ending at close to be inside")
	}
	if WithinRule(late, time.UTC, r) || WithinRule(early, time.UTC, r) {
		t.Fatalf("expected intervals outside working window to be rejected")
	}
	if WithinRule(ok, time.UTC, nil) {
		t.Fatalf("missing rule should reject")
	}
}

func TestToSlots(t *testing.T) {
	start := time.Date(2025, 3, 3, 15, 5, 0, 0, time.UTC)
	slots := ToSlots([]Interval{{Start: start, End: start.Add(30 * time.Minute)}}, time.UTC)
	if slots[0].Time != "15:05" || slots[0].Display != "3:05 PM" {
		t.Fatalf("unexpected labels %+v", slots[0])
	}
}
