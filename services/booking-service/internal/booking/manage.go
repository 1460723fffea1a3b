package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/outbox"
)

// GetWithToken returns the appointment when token matches. Any mismatch is
// reported as NOT_FOUND so ids cannot be probed.
func (s *Service) GetWithToken(ctx context.Context, id, token string) (model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.get_with_token")
	defer span.End()

	appt, err := s.appointmentWithToken(ctx, id, token)
	if err != nil {
		return model.Appointment{}, s.fail(span, err)
	}
	return appt, nil
}

// CancelWithToken moves a confirmed appointment to cancelled. Repeating the
// call, or cancelling anything not confirmed, is NOT_FOUND.
func (s *Service) CancelWithToken(ctx context.Context, id, token string) (model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.cancel_with_token")
	defer span.End()

	appt, err := s.appointmentWithToken(ctx, id, token)
	if err != nil {
		return model.Appointment{}, s.fail(span, err)
	}
	if appt.Status != model.StatusConfirmed {
		return model.Appointment{}, s.fail(span, notFound("appointment"))
	}
	client, err := s.store.ClientByRef(ctx, appt.ClientID)
	if err != nil {
		return model.Appointment{}, s.fail(span, internal("load client", err))
	}
	updated, err := s.transition(ctx, client, appt, model.StatusCancelled, nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Appointment{}, s.fail(span, notFound("appointment"))
		}
		return model.Appointment{}, s.fail(span, err)
	}
	return updated, nil
}

func (s *Service) appointmentWithToken(ctx context.Context, id, token string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil || token == "" {
		return model.Appointment{}, notFound("appointment")
	}
	appt, err := s.store.Appointment(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return model.Appointment{}, notFound("appointment")
	}
	if err != nil {
		return model.Appointment{}, internal("load appointment", err)
	}
	if err := s.tokens.Verify(appt.TokenHash, token); err != nil {
		return model.Appointment{}, notFound("appointment")
	}
	return appt, nil
}

type UpdateRequest struct {
	Status *model.AppointmentStatus
	Notes  *string
}

// UpdateAppointment applies an operator change. Only confirmed appointments
// can change status; terminal appointments accept note edits only.
func (s *Service) UpdateAppointment(ctx context.Context, agencyID, id string, req UpdateRequest) (model.Appointment, error) {
	ctx, span := tracer.Start(ctx, "booking.update_appointment")
	defer span.End()

	if req.Status == nil && req.Notes == nil {
		return model.Appointment{}, s.fail(span, validationError("nothing to update", nil))
	}
	if req.Notes != nil && len([]rune(*req.Notes)) > maxNotesLen {
		return model.Appointment{}, s.fail(span, validationError(fmt.Sprintf("notes must be at most %d characters", maxNotesLen), map[string]any{"field": "notes"}))
	}
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, s.fail(span, notFound("appointment"))
	}
	appt, err := s.store.Appointment(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return model.Appointment{}, s.fail(span, notFound("appointment"))
	}
	if err != nil {
		return model.Appointment{}, s.fail(span, internal("load appointment", err))
	}
	client, err := s.ownedClient(ctx, agencyID, appt.ClientID)
	if err != nil {
		return model.Appointment{}, s.fail(span, err)
	}

	target := appt.Status
	if req.Status != nil {
		target = *req.Status
		if !target.Valid() {
			return model.Appointment{}, s.fail(span, validationError("unknown status "+string(target), map[string]any{"field": "status"}))
		}
		if target != appt.Status && appt.Status.Terminal() {
			return model.Appointment{}, s.fail(span, validationError(
				fmt.Sprintf("cannot change status from %s to %s", appt.Status, target),
				map[string]any{"from": appt.Status, "to": target}))
		}
	}

	updated, err := s.transition(ctx, client, appt, target, req.Notes)
	if errors.Is(err, ErrNotFound) {
		return model.Appointment{}, s.fail(span, validationError("appointment changed concurrently, reload and retry", nil))
	}
	if err != nil {
		return model.Appointment{}, s.fail(span, err)
	}
	return updated, nil
}

// transition applies from appt.Status to target inside the client lock and
// emits the matching event. A status change away from confirmed frees the slot.
func (s *Service) transition(ctx context.Context, client model.Client, appt model.Appointment, target model.AppointmentStatus, notes *string) (model.Appointment, error) {
	var updated model.Appointment
	err := s.store.WithClientLock(ctx, client.ID, func(tx Tx) error {
		var err error
		updated, err = tx.TransitionStatus(ctx, appt.ID, appt.Status, target, notes, s.now().UTC())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return err
			}
			return internal("update appointment", err)
		}
		if target == appt.Status {
			return nil
		}
		eventType := outbox.EventAppointmentUpdated
		if target == model.StatusCancelled {
			eventType = outbox.EventAppointmentCancelled
		}
		payload := appointmentPayload(client, updated)
		payload["previous_status"] = appt.Status
		evt, err := outbox.NewEvent(ctx, updated.ID, eventType, payload)
		if err != nil {
			return internal("build event", err)
		}
		if err := tx.InsertEvent(ctx, evt); err != nil {
			return internal("write outbox event", err)
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if target == appt.Status {
		return updated, nil
	}

	s.metrics.ObserveTransition(string(target))
	s.logger.InfoContext(ctx, "appointment status changed", "appointment_id", updated.ID, "from", appt.Status, "to", target)
	if appt.Status == model.StatusConfirmed {
		s.invalidate(ctx, client, updated.StartTime, updated.EndTime, time.Duration(updated.BufferMinutes)*time.Minute)
	}
	if target == model.StatusCancelled {
		s.dispatch(ctx, "cancellation", func(ctx context.Context) error {
			return s.notifier.SendCancellation(ctx, client, updated)
		})
	}
	return updated, nil
}

// ListAppointments returns the agency's appointments ordered by start time.
func (s *Service) ListAppointments(ctx context.Context, agencyID string, f model.AppointmentFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, validationError("unknown status "+string(f.Status), map[string]any{"field": "status"})
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, validationError("to must not be before from", nil)
	}
	if f.ClientID != "" {
		client, err := s.ownedClient(ctx, agencyID, f.ClientID)
		if err != nil {
			return nil, err
		}
		f.ClientID = client.ID
	}
	appts, err := s.store.ListAppointments(ctx, agencyID, f)
	if err != nil {
		return nil, internal("list appointments", err)
	}
	return appts, nil
}

func (s *Service) ownedClient(ctx context.Context, agencyID, ref string) (model.Client, error) {
	client, err := s.store.ClientByRef(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return model.Client{}, notFound("client")
	}
	if err != nil {
		return model.Client{}, internal("load client", err)
	}
	if client.AgencyID != agencyID {
		return model.Client{}, notFound("client")
	}
	return client, nil
}
