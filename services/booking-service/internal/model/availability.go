package model

import (
	"fmt"
	"time"
)

// AvailabilityRule is the weekly working window for one weekday.
// DayOfWeek uses Monday=0 .. Sunday=6.
type AvailabilityRule struct {
	ClientID    string `json:"client_id"`
	DayOfWeek   int    `json:"day_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

// ParseClock parses "HH:MM" (24h) into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil || len(s) != 5 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (r AvailabilityRule) Validate() error {
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return &FieldError{Field: "day_of_week", Message: "must be between 0 and 6"}
	}
	start, err := ParseClock(r.StartTime)
	if err != nil {
		return &FieldError{Field: "start_time", Message: err.Error()}
	}
	end, err := ParseClock(r.EndTime)
	if err != nil {
		return &FieldError{Field: "end_time", Message: err.Error()}
	}
	if r.IsAvailable && end <= start {
		return &FieldError{Field: "end_time", Message: "must be after start_time"}
	}
	return nil
}

// DefaultRules is a Monday to Friday 09:00-17:00 week.
func DefaultRules(clientID string) []AvailabilityRule {
	rules := make([]AvailabilityRule, 0, 7)
	for d := 0; d < 7; d++ {
		rules = append(rules, AvailabilityRule{
			ClientID:    clientID,
			DayOfWeek:   d,
			StartTime:   "09:00",
			EndTime:     "17:00",
			IsAvailable: d < 5,
		})
	}
	return rules
}

// BusyBlock is time reserved by an external calendar.
type BusyBlock struct {
	ClientID   string    `json:"client_id"`
	Source     string    `json:"source"`
	ExternalID string    `json:"external_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// Slot is a bookable start time rendered in the client's timezone.
type Slot struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Time    string    `json:"time"`
	Display string    `json:"display"`
}
