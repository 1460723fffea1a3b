package model

import "time"

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no_show"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Terminal statuses never change again.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

type Appointment struct {
	ID            string            `json:"id"`
	ClientID      string            `json:"client_id"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email"`
	CustomerPhone string            `json:"customer_phone,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	Status        AppointmentStatus `json:"status"`
	// BufferMinutes is the client's buffer at booking time; the row blocks
	// [StartTime, EndTime+buffer) for later bookings.
	BufferMinutes int        `json:"-"`
	TokenHash     string     `json:"-"`
	ReminderSent  bool       `json:"reminder_sent"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (a Appointment) BlockedUntil() time.Time {
	return a.EndTime.Add(time.Duration(a.BufferMinutes) * time.Minute)
}

// AppointmentFilter narrows operator listings.
type AppointmentFilter struct {
	ClientID string
	Status   AppointmentStatus
	From     time.Time
	To       time.Time
	Limit    int
}
