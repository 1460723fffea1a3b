package model

import (
	"fmt"
	"time"
)

type ClientSettings struct {
	ClientID                   string `json:"client_id"`
	AppointmentDurationMinutes int    `json:"appointment_duration_minutes"`
	BufferTimeMinutes          int    `json:"buffer_time_minutes"`
	MaxBookingsPerDay          int    `json:"max_bookings_per_day"`
	MinNoticeHours             int    `json:"min_notice_hours"`
	MaxAdvanceDays             int    `json:"max_advance_days"`
}

// DefaultSettings apply when a client has no settings row yet.
func DefaultSettings(clientID string) ClientSettings {
	return ClientSettings{
		ClientID:                   clientID,
		AppointmentDurationMinutes: 30,
		BufferTimeMinutes:          15,
		MaxBookingsPerDay:          10,
		MinNoticeHours:             24,
		MaxAdvanceDays:             60,
	}
}

func (s ClientSettings) Duration() time.Duration {
	return time.Duration(s.AppointmentDurationMinutes) * time.Minute
}

func (s ClientSettings) Buffer() time.Duration {
	return time.Duration(s.BufferTimeMinutes) * time.Minute
}

func (s ClientSettings) MinNotice() time.Duration {
	return time.Duration(s.MinNoticeHours) * time.Hour
}

func (s ClientSettings) Validate() error {
	checks := []struct {
		name     string
		v        int
		min, max int
	}{
		{"appointment_duration_minutes", s.AppointmentDurationMinutes, 15, 480},
		{"buffer_time_minutes", s.BufferTimeMinutes, 0, 120},
		{"max_bookings_per_day", s.MaxBookingsPerDay, 1, 100},
		{"min_notice_hours", s.MinNoticeHours, 0, 168},
		{"max_advance_days", s.MaxAdvanceDays, 1, 365},
	}
	for _, c := range checks {
		if c.v < c.min || c.v > c.max {
			return &FieldError{Field: c.name, Message: fmt.Sprintf("must be between %d and %d", c.min, c.max)}
		}
	}
	return nil
}

// FieldError reports a single invalid input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Message
}
