package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/outbox"
)

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

const maxNotesLen = 500

type BookRequest struct {
	ClientRef      string
	StartTime      time.Time
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	Notes          string
	IdempotencyKey string
}

// BookResult is what a booking returns. The cancellation token is only ever
// handed out by the request that created the appointment; a replay of the
// same idempotency key gets the appointment with Replayed set and no token.
type BookResult struct {
	Appointment       model.Appointment `json:"appointment"`
	CancellationToken string            `json:"cancellation_token,omitempty"`
	Replayed          bool              `json:"replayed,omitempty"`
}

// replay decodes a stored response. The token is cleared even if an older
// payload still carries one.
func replay(raw []byte) (BookResult, error) {
	var res BookResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return BookResult{}, internal("decode idempotent response", err)
	}
	res.CancellationToken = ""
	res.Replayed = true
	return res, nil
}

func (r *BookRequest) normalize() *Error {
	r.ClientRef = strings.TrimSpace(r.ClientRef)
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.Notes = strings.TrimSpace(r.Notes)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)

	switch {
	case r.ClientRef == "":
		return validationError("client is required", map[string]any{"field": "client_id"})
	case r.StartTime.IsZero():
		return validationError("start_time is required", map[string]any{"field": "start_time"})
	case len([]rune(r.CustomerName)) < 2:
		return validationError("customer_name must be at least 2 characters", map[string]any{"field": "customer_name"})
	case !validEmail(r.CustomerEmail):
		return validationError("customer_email is invalid", map[string]any{"field": "customer_email"})
	case r.CustomerPhone != "" && !phonePattern.MatchString(r.CustomerPhone):
		return validationError("customer_phone is invalid", map[string]any{"field": "customer_phone"})
	case len([]rune(r.Notes)) > maxNotesLen:
		return validationError(fmt.Sprintf("notes must be at most %d characters", maxNotesLen), map[string]any{"field": "notes"})
	case len(r.IdempotencyKey) > 200:
		return validationError("idempotency key too long", nil)
	}
	return nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Book runs the booking transaction. The conflict check, the daily cap and
// the insert happen inside one client critical section, so of two
// overlapping concurrent requests exactly one commits.
func (s *Service) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	ctx, span := tracer.Start(ctx, "booking.book")
	defer span.End()

	started := s.now()
	res, err := s.book(ctx, req)
	outcome := "confirmed"
	if err != nil {
		err = s.fail(span, err)
		outcome = string(CodeOf(err))
	} else {
		span.SetAttributes(attribute.String("bookwell.appointment_id", res.Appointment.ID))
	}
	s.metrics.ObserveBooking(outcome, s.now().Sub(started).Seconds())
	return res, err
}

func (s *Service) book(ctx context.Context, req BookRequest) (BookResult, error) {
	if verr := req.normalize(); verr != nil {
		return BookResult{}, verr
	}

	client, err := s.store.ClientByRef(ctx, req.ClientRef)
	if errors.Is(err, ErrNotFound) || (err == nil && !client.IsActive) {
		return BookResult{}, notFound("client")
	}
	if err != nil {
		return BookResult{}, internal("load client", err)
	}
	// A retry must see the original outcome even after the slot has moved
	// past the notice window, so replays are answered before any time check.
	if req.IdempotencyKey != "" {
		stored, ok, err := s.store.Idempotency(ctx, client.ID, req.IdempotencyKey)
		if err != nil {
			return BookResult{}, internal("load idempotency key", err)
		}
		if ok {
			return replay(stored)
		}
	}
	settings, err := s.store.Settings(ctx, client.ID)
	if err != nil {
		return BookResult{}, internal("load settings", err)
	}
	rules, err := s.store.Rules(ctx, client.ID)
	if err != nil {
		return BookResult{}, internal("load rules", err)
	}

	loc := client.Location()
	start := req.StartTime.UTC().Truncate(time.Second)
	slot := availability.Interval{Start: start, End: start.Add(settings.Duration())}

	now := s.now()
	window := availability.Window{MinNotice: settings.MinNotice(), MaxAdvanceDays: settings.MaxAdvanceDays, Loc: loc}
	switch {
	case start.Before(now):
		return BookResult{}, &Error{Code: CodeBookingInPast, Message: "cannot book an appointment in the past"}
	case !window.NoticeOK(start, now):
		return BookResult{}, validationError(
			fmt.Sprintf("Bookings require at least %d hours notice", settings.MinNoticeHours),
			map[string]any{"min_notice_hours": settings.MinNoticeHours})
	case !window.AdvanceOK(start, now):
		return BookResult{}, validationError(
			fmt.Sprintf("Bookings can be made at most %d days in advance", settings.MaxAdvanceDays),
			map[string]any{"max_advance_days": settings.MaxAdvanceDays})
	}
	rule := availability.RuleFor(rules, availability.Weekday(start.In(loc).Weekday()))
	if !availability.WithinRule(slot, loc, rule) {
		return BookResult{}, validationError("requested time is outside availability", nil)
	}

	token, tokenHash, err := s.tokens.New()
	if err != nil {
		return BookResult{}, internal("issue cancellation token", err)
	}

	var result BookResult
	err = s.store.WithClientLock(ctx, client.ID, func(tx Tx) error {
		if req.IdempotencyKey != "" {
			stored, ok, err := tx.Idempotency(ctx, client.ID, req.IdempotencyKey)
			if err != nil {
				return internal("load idempotency key", err)
			}
			if ok {
				result, err = replay(stored)
				return err
			}
		}

		buffer := settings.Buffer()
		booked, busy, err := loadBusy(ctx, tx, client.ID, slot.Start.Add(-buffer), slot.End.Add(buffer))
		if err != nil {
			return err
		}
		if availability.Conflicts(slot, booked, buffer, busy) {
			return &Error{Code: CodeSlotUnavailable, Message: "the requested time slot is no longer available"}
		}

		dayStart, dayEnd := availability.DayBounds(start, loc)
		count, err := tx.CountConfirmed(ctx, client.ID, dayStart, dayEnd)
		if err != nil {
			return internal("count daily bookings", err)
		}
		if availability.CapReached(count, settings.MaxBookingsPerDay) {
			return &Error{
				Code:    CodeMaxBookingsReached,
				Message: "maximum bookings for this day has been reached",
				Details: map[string]any{"max_bookings_per_day": settings.MaxBookingsPerDay},
			}
		}

		appt := model.Appointment{
			ClientID:      client.ID,
			StartTime:     slot.Start,
			EndTime:       slot.End,
			CustomerName:  req.CustomerName,
			CustomerEmail: req.CustomerEmail,
			CustomerPhone: req.CustomerPhone,
			Notes:         req.Notes,
			Status:        model.StatusConfirmed,
			BufferMinutes: settings.BufferTimeMinutes,
			TokenHash:     tokenHash,
		}
		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			if errors.Is(err, ErrSlotTaken) {
				return &Error{Code: CodeSlotUnavailable, Message: "the requested time slot is no longer available", Err: err}
			}
			return internal("insert appointment", err)
		}

		evt, err := outbox.NewEvent(ctx, appt.ID, outbox.EventAppointmentConfirmed, appointmentPayload(client, appt))
		if err != nil {
			return internal("build event", err)
		}
		if err := tx.InsertEvent(ctx, evt); err != nil {
			return internal("write outbox event", err)
		}

		result = BookResult{Appointment: appt, CancellationToken: token}
		if req.IdempotencyKey != "" {
			raw, err := json.Marshal(BookResult{Appointment: appt})
			if err != nil {
				return internal("encode idempotent response", err)
			}
			if err := tx.SaveIdempotency(ctx, client.ID, req.IdempotencyKey, appt.ID, raw); err != nil {
				return internal("save idempotency key", err)
			}
		}
		return nil
	})
	var domainErr *Error
	switch {
	case err == nil:
	case errors.As(err, &domainErr):
		return BookResult{}, domainErr
	case errors.Is(err, ErrSlotTaken):
		// commit-time guard
		return BookResult{}, &Error{Code: CodeSlotUnavailable, Message: "the requested time slot is no longer available", Err: err}
	default:
		return BookResult{}, internal("booking transaction", err)
	}
	if result.Replayed {
		return result, nil
	}

	appt := result.Appointment
	s.logger.InfoContext(ctx, "appointment booked", "client_id", client.ID, "appointment_id", appt.ID, "start_time", appt.StartTime)
	s.invalidate(ctx, client, appt.StartTime, appt.EndTime, settings.Buffer())
	s.dispatch(ctx, "confirmation", func(ctx context.Context) error {
		return s.notifier.SendConfirmation(ctx, client, appt, token)
	})
	return result, nil
}

func appointmentPayload(c model.Client, a model.Appointment) map[string]any {
	return map[string]any{
		"appointment_id": a.ID,
		"client_id":      c.ID,
		"agency_id":      c.AgencyID,
		"status":         a.Status,
		"customer_email": a.CustomerEmail,
		"customer_phone": a.CustomerPhone,
		"start_time":     a.StartTime.UTC().Format(time.RFC3339),
		"end_time":       a.EndTime.UTC().Format(time.RFC3339),
	}
}
