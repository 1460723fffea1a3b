package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
)

// ReminderClaimTTL bounds how long a claimed reminder stays invisible to
// other sweepers. A failed send keeps its claim until it lapses, so the
// appointment is retried by a later sweep rather than the current one.
const ReminderClaimTTL = 5 * time.Minute

// ProcessDueReminders claims confirmed, unreminded appointments starting in
// [from, to] one at a time and calls fn for each. No transaction or row lock
// is held while fn runs. reminder_sent is set only when fn succeeds.
func (p *Postgres) ProcessDueReminders(ctx context.Context, from, to time.Time, limit int, fn func(context.Context, model.Client, model.Appointment) error) (sent int, failed int, err error) {
	clients := map[string]model.Client{}
	for limit <= 0 || sent+failed < limit {
		if err := ctx.Err(); err != nil {
			return sent, failed, err
		}
		a, err := p.claimReminder(ctx, from, to)
		if errors.Is(err, booking.ErrNotFound) {
			break
		}
		if err != nil {
			return sent, failed, fmt.Errorf("claim reminder: %w", err)
		}

		c, ok := clients[a.ClientID]
		if !ok {
			c, err = scanClient(p.conn.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, a.ClientID))
			if err != nil {
				return sent, failed, fmt.Errorf("load client %s: %w", a.ClientID, err)
			}
			clients[a.ClientID] = c
		}
		if err := fn(ctx, c, a); err != nil {
			failed++
			continue
		}
		if _, err := p.conn.Exec(ctx, `
			UPDATE appointments
			SET reminder_sent = true, reminder_claimed_until = NULL, updated_at = now()
			WHERE id = $1
		`, a.ID); err != nil {
			return sent, failed, fmt.Errorf("mark reminder sent: %w", err)
		}
		sent++
	}
	return sent, failed, nil
}

// claimReminder takes the earliest due appointment whose claim is free or
// lapsed. SKIP LOCKED keeps concurrent sweepers off the same row; the lock
// lasts only for this statement.
func (p *Postgres) claimReminder(ctx context.Context, from, to time.Time) (model.Appointment, error) {
	return scanAppointment(p.conn.QueryRow(ctx, `
		UPDATE appointments
		SET reminder_claimed_until = now() + $3 * interval '1 millisecond'
		WHERE id = (
			SELECT id FROM appointments
			WHERE status = 'confirmed'
				AND reminder_sent = false
				AND start_time >= $1
				AND start_time <= $2
				AND (reminder_claimed_until IS NULL OR reminder_claimed_until < now())
			ORDER BY start_time ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+appointmentColumns, from, to, ReminderClaimTTL.Milliseconds()))
}
