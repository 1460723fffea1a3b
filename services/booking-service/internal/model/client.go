package model

import (
	"strings"
	"time"
)

// Client is a business served by an agency; it owns a public booking page.
type Client struct {
	ID          string    `json:"id"`
	AgencyID    string    `json:"agency_id"`
	Name        string    `json:"name"`
	BookingSlug string    `json:"booking_slug"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Timezone    string    `json:"timezone"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Location resolves the client's IANA zone, falling back to UTC.
func (c Client) Location() *time.Location {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
