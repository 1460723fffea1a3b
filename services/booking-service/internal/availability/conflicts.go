package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open semantics: [a,b) and [c,d) overlap iff a < d && c < b.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Pad widens every interval by buffer on both sides.
func Pad(ivs []Interval, buffer time.Duration) []Interval {
	out := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		out = append(out, Interval{Start: iv.Start.Add(-buffer), End: iv.End.Add(buffer)})
	}
	return out
}

// FilterConflicts drops candidates that collide with a confirmed appointment
// (padded by buffer) or an external busy block (unpadded). Order is preserved.
func FilterConflicts(candidates, booked []Interval, buffer time.Duration, external []Interval) []Interval {
	busy := append(Pad(booked, buffer), external...)
	out := make([]Interval, 0, len(candidates))
	for _, c := range candidates {
		if !overlapsAny(c, busy) {
			out = append(out, c)
		}
	}
	return out
}

// Conflicts is the single-candidate form of FilterConflicts.
func Conflicts(c Interval, booked []Interval, buffer time.Duration, external []Interval) bool {
	return overlapsAny(c, Pad(booked, buffer)) || overlapsAny(c, external)
}

func overlapsAny(c Interval, busy []Interval) bool {
	for _, b := range busy {
		if c.Overlaps(b) {
			return true
		}
	}
	return false
}
