package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/outbox"
)

// Store is the persistence contract. Reads outside WithClientLock may be
// stale; every check that guards a write is repeated inside it.
type Store interface {
	// ClientByRef resolves a client by id or booking slug.
	ClientByRef(ctx context.Context, ref string) (model.Client, error)
	CreateClient(ctx context.Context, c model.Client, s model.ClientSettings, rules []model.AvailabilityRule) (model.Client, error)
	// ListClients returns the agency's clients, newest first.
	ListClients(ctx context.Context, agencyID string) ([]model.Client, error)
	// UpdateClient overwrites the mutable profile fields of c.ID.
	UpdateClient(ctx context.Context, c model.Client) (model.Client, error)
	// DeleteClient removes the client and everything it owns.
	DeleteClient(ctx context.Context, clientID string) error
	// Settings returns model.DefaultSettings when the client has none stored.
	Settings(ctx context.Context, clientID string) (model.ClientSettings, error)
	SaveSettings(ctx context.Context, s model.ClientSettings) error
	Rules(ctx context.Context, clientID string) ([]model.AvailabilityRule, error)
	ReplaceRules(ctx context.Context, clientID string, rules []model.AvailabilityRule) error

	// ListConfirmed returns confirmed appointments overlapping [from, to).
	ListConfirmed(ctx context.Context, clientID string, from, to time.Time) ([]model.Appointment, error)
	ListBusyBlocks(ctx context.Context, clientID string, from, to time.Time) ([]model.BusyBlock, error)
	UpsertBusyBlock(ctx context.Context, b model.BusyBlock) error
	DeleteBusyBlock(ctx context.Context, clientID, source, externalID string) (model.BusyBlock, error)

	Appointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, agencyID string, f model.AppointmentFilter) ([]model.Appointment, error)
	// Idempotency is the unlocked read of a stored booking response.
	Idempotency(ctx context.Context, clientID, key string) ([]byte, bool, error)

	// WithClientLock runs fn in one transaction while holding the client's
	// mutual-exclusion lock. fn's writes commit only if it returns nil.
	WithClientLock(ctx context.Context, clientID string, fn func(Tx) error) error
}

// Tx is the view of the store inside a client critical section.
type Tx interface {
	ListConfirmed(ctx context.Context, clientID string, from, to time.Time) ([]model.Appointment, error)
	ListBusyBlocks(ctx context.Context, clientID string, from, to time.Time) ([]model.BusyBlock, error)
	// CountConfirmed counts confirmed appointments starting in [from, to].
	CountConfirmed(ctx context.Context, clientID string, from, to time.Time) (int, error)
	// InsertAppointment assigns ID and timestamps. It returns ErrSlotTaken
	// when the storage-level overlap guard fires.
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	// TransitionStatus moves id from one status to another and applies notes
	// when non-nil. ErrNotFound when the row is not currently in from.
	TransitionStatus(ctx context.Context, id string, from, to model.AppointmentStatus, notes *string, at time.Time) (model.Appointment, error)
	InsertEvent(ctx context.Context, evt outbox.Event) error
	// Idempotency returns a stored response for key, if any.
	Idempotency(ctx context.Context, clientID, key string) ([]byte, bool, error)
	SaveIdempotency(ctx context.Context, clientID, key, appointmentID string, response []byte) error
}

// Notifier delivers customer messages. Failures never undo a booking.
type Notifier interface {
	SendConfirmation(ctx context.Context, c model.Client, a model.Appointment, cancelToken string) error
	SendCancellation(ctx context.Context, c model.Client, a model.Appointment) error
}

// SlotCache holds the conflict-filtered grid of a client-local day. Notice
// and advance limits are applied after the cache on every read.
//
// Every invalidation bumps the client's generation. A reader takes the
// generation before computing a grid and passes it to Set, which drops the
// write if an invalidation happened in between.
type SlotCache interface {
	Get(ctx context.Context, clientID, date string) ([]model.Slot, bool, error)
	Generation(ctx context.Context, clientID string) (int64, error)
	Set(ctx context.Context, clientID, date string, gen int64, slots []model.Slot) error
	Invalidate(ctx context.Context, clientID string, dates ...string) error
	InvalidateClient(ctx context.Context, clientID string) error
}
