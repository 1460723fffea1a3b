package availability

import (
	"time"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
)

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date. Only the year, month and day
// of the result are meaningful.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// Weekday converts Go's Sunday=0 numbering to Monday=0..Sunday=6.
func Weekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// DateWeekday is the Monday=0 weekday of a calendar date.
func DateWeekday(date time.Time) int {
	y, m, d := date.Date()
	return Weekday(time.Date(y, m, d, 12, 0, 0, 0, time.UTC).Weekday())
}

func RuleFor(rules []model.AvailabilityRule, weekday int) *model.AvailabilityRule {
	for i := range rules {
		if rules[i].DayOfWeek == weekday {
			return &rules[i]
		}
	}
	return nil
}

// Grid lays candidate slots over the rule's working window on date in loc.
// Candidates start at the opening time and are spaced duration+buffer apart;
// the last one ends no later than closing time.
func Grid(date time.Time, loc *time.Location, rule *model.AvailabilityRule, duration, buffer time.Duration) []Interval {
	open, closing, ok := workingWindow(date, loc, rule)
	if !ok || duration <= 0 || buffer < 0 {
		return nil
	}
	step := duration + buffer

	var out []Interval
	for s := open; !s.Add(duration).After(closing); s = s.Add(step) {
		out = append(out, Interval{Start: s, End: s.Add(duration)})
	}
	return out
}

// WithinRule reports whether iv lies inside the rule's working window on the
// client-local date of iv.Start.
func WithinRule(iv Interval, loc *time.Location, rule *model.AvailabilityRule) bool {
	open, closing, ok := workingWindow(iv.Start.In(loc), loc, rule)
	if !ok {
		return false
	}
	return !iv.Start.Before(open) && !iv.End.After(closing)
}

func workingWindow(date time.Time, loc *time.Location, rule *model.AvailabilityRule) (time.Time, time.Time, bool) {
	if rule == nil || !rule.IsAvailable {
		return time.Time{}, time.Time{}, false
	}
	openMin, err := model.ParseClock(rule.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	closeMin, err := model.ParseClock(rule.EndTime)
	if err != nil || closeMin <= openMin {
		return time.Time{}, time.Time{}, false
	}
	y, m, d := date.Date()
	open := time.Date(y, m, d, openMin/60, openMin%60, 0, 0, loc)
	closing := time.Date(y, m, d, closeMin/60, closeMin%60, 0, 0, loc)
	return open, closing, true
}

// ToSlots renders intervals as local "HH:MM" and "3:04 PM" labels.
func ToSlots(ivs []Interval, loc *time.Location) []model.Slot {
	out := make([]model.Slot, 0, len(ivs))
	for _, iv := range ivs {
		local := iv.Start.In(loc)
		out = append(out, model.Slot{
			Start:   iv.Start,
			End:     iv.End,
			Time:    local.Format("15:04"),
			Display: local.Format("3:04 PM"),
		})
	}
	return out
}
