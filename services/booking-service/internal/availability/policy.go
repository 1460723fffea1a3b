package availability

import "time"

// Window is the notice/advance booking policy evaluated against now.
type Window struct {
	MinNotice      time.Duration
	MaxAdvanceDays int
	Loc            *time.Location
}

// NoticeOK: start >= now + MinNotice.
func (w Window) NoticeOK(start, now time.Time) bool {
	return !start.Before(now.Add(w.MinNotice))
}

// AdvanceOK compares calendar dates in the client zone only; the time of day
// of start does not matter.
func (w Window) AdvanceOK(start, now time.Time) bool {
	loc := w.location()
	sy, sm, sd := start.In(loc).Date()
	ny, nm, nd := now.In(loc).Date()
	slotDate := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	limit := time.Date(ny, nm, nd+w.MaxAdvanceDays, 0, 0, 0, 0, time.UTC)
	return !slotDate.After(limit)
}

func (w Window) Eligible(start, now time.Time) bool {
	return w.NoticeOK(start, now) && w.AdvanceOK(start, now)
}

func (w Window) Filter(candidates []Interval, now time.Time) []Interval {
	out := make([]Interval, 0, len(candidates))
	for _, c := range candidates {
		if w.Eligible(c.Start, now) {
			out = append(out, c)
		}
	}
	return out
}

func (w Window) location() *time.Location {
	if w.Loc == nil {
		return time.UTC
	}
	return w.Loc
}

// DayBounds returns the first and last representable instant (microsecond
// precision) of t's calendar day in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := t.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	next := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	return start, next.Add(-time.Microsecond)
}

// CapReached reports whether count confirmed bookings already fill the day.
func CapReached(count, max int) bool {
	return max > 0 && count >= max
}
