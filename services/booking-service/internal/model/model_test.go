package model

import (
	"testing"
	"time"
)

func TestSettingsValidate(t *testing.T) {
	s := DefaultSettings("c1")
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	s.BufferTimeMinutes = 121
	err := s.Validate()
	fe, ok := err.(*FieldError)
	if !ok || fe.Field != "buffer_time_minutes" {
		t.Fatalf("expected buffer field error, got %v", err)
	}
}

func TestRuleValidate(t *testing.T) {
	cases := []struct {
		rule AvailabilityRule
		ok   bool
	}{
		{AvailabilityRule{DayOfWeek: 0, StartTime: "09:00", EndTime: "17:00", IsAvailable: true}, true},
		{AvailabilityRule{DayOfWeek: 7, StartTime: "09:00", EndTime: "17:00", IsAvailable: true}, false},
		{AvailabilityRule{DayOfWeek: 1, StartTime: "9:00", EndTime: "17:00", IsAvailable: true}, false},
		{AvailabilityRule{DayOfWeek: 1, StartTime: "17:00", EndTime: "09:00", IsAvailable: true}, false},
		{AvailabilityRule{DayOfWeek: 1, StartTime: "17:00", EndTime: "09:00", IsAvailable: false}, true},
	}
	for i, c := range cases {
		if err := c.rule.Validate(); (err == nil) != c.ok {
			t.Fatalf("case %d: got err=%v, want ok=%v", i, err, c.ok)
		}
	}
}

func TestClientLocationFallback(t *testing.T) {
	if (Client{Timezone: "Mars/Olympus"}).Location() != time.UTC {
		t.Fatalf("unknown zone should fall back to UTC")
	}
	if got := (Client{Timezone: "America/New_York"}).Location().String(); got != "America/New_York" {
		t.Fatalf("got %s", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusConfirmed.Terminal() || !StatusNoShow.Terminal() || !StatusCancelled.Terminal() {
		t.Fatalf("unexpected terminal flags")
	}
	if AppointmentStatus("booked").Valid() {
		t.Fatalf("unknown status should be invalid")
	}
}

func TestBlockedUntil(t *testing.T) {
	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	a := Appointment{StartTime: start, EndTime: start.Add(30 * time.Minute), BufferMinutes: 15}
	if !a.BlockedUntil().Equal(start.Add(45 * time.Minute)) {
		t.Fatalf("got %v", a.BlockedUntil())
	}
}
