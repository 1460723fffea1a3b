package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/outbox"
)

const appointmentColumns = `id::text, client_id::text, start_time, end_time, customer_name, customer_email,
	COALESCE(customer_phone, ''), COALESCE(notes, ''), status, buffer_minutes, cancellation_token_hash,
	reminder_sent, cancelled_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(
		&a.ID,
		&a.ClientID,
		&a.StartTime,
		&a.EndTime,
		&a.CustomerName,
		&a.CustomerEmail,
		&a.CustomerPhone,
		&a.Notes,
		&status,
		&a.BufferMinutes,
		&a.TokenHash,
		&a.ReminderSent,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, notFound(err)
	}
	a.Status = model.AppointmentStatus(status)
	return a, nil
}

func collectAppointments(rows pgx.Rows, err error) ([]model.Appointment, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *Postgres) Appointment(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(p.conn.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

func (p *Postgres) ListConfirmed(ctx context.Context, clientID string, from, to time.Time) ([]model.Appointment, error) {
	return listConfirmed(ctx, p.conn, clientID, from, to)
}

func listConfirmed(ctx context.Context, q querier, clientID string, from, to time.Time) ([]model.Appointment, error) {
	return collectAppointments(q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1
			AND status = 'confirmed'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, clientID, from, to))
}

func (p *Postgres) ListAppointments(ctx context.Context, agencyID string, f model.AppointmentFilter) ([]model.Appointment, error) {
	where := []string{"client_id IN (SELECT id FROM clients WHERE agency_id = $1)"}
	args := []any{agencyID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, cond+" $"+strconv.Itoa(len(args)))
	}
	if f.ClientID != "" {
		add("client_id =", f.ClientID)
	}
	if f.Status != "" {
		add("status =", string(f.Status))
	}
	if !f.From.IsZero() {
		add("start_time >=", f.From)
	}
	if !f.To.IsZero() {
		add("start_time <", f.To)
	}
	args = append(args, f.Limit)

	sql := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY start_time ASC
		LIMIT $` + strconv.Itoa(len(args))
	return collectAppointments(p.conn.Query(ctx, sql, args...))
}

// WithClientLock serialises writers for one client with
// pg_advisory_xact_lock; the lock is released at commit or rollback.
func (p *Postgres) WithClientLock(ctx context.Context, clientID string, fn func(booking.Tx) error) error {
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, clientID); err != nil {
		return fmt.Errorf("lock client: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if IsConflict(err) {
			return booking.ErrSlotTaken
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) ListConfirmed(ctx context.Context, clientID string, from, to time.Time) ([]model.Appointment, error) {
	return listConfirmed(ctx, t.tx, clientID, from, to)
}

func (t *pgTx) ListBusyBlocks(ctx context.Context, clientID string, from, to time.Time) ([]model.BusyBlock, error) {
	return listBusyBlocks(ctx, t.tx, clientID, from, to)
}

func (t *pgTx) CountConfirmed(ctx context.Context, clientID string, from, to time.Time) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE client_id = $1
		  AND status = 'confirmed'
		  AND start_time >= $2
		  AND start_time <= $3
	`, clientID, from, to).Scan(&n)
	return n, err
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(client_id, start_time, end_time, blocked_until, customer_name, customer_email, customer_phone,
			 notes, status, buffer_minutes, cancellation_token_hash)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11)
		RETURNING id::text, created_at, updated_at
	`, a.ClientID, a.StartTime, a.EndTime, a.BlockedUntil(), a.CustomerName, a.CustomerEmail, a.CustomerPhone,
		a.Notes, string(a.Status), a.BufferMinutes, a.TokenHash).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if IsConflict(err) {
			return booking.ErrSlotTaken
		}
		return err
	}
	return nil
}

func (t *pgTx) TransitionStatus(ctx context.Context, id string, from, to model.AppointmentStatus, notes *string, at time.Time) (model.Appointment, error) {
	return scanAppointment(t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			notes = COALESCE($4, notes),
			updated_at = $5,
			cancelled_at = CASE WHEN $3::text = 'cancelled' THEN $5 ELSE cancelled_at END
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns, id, string(from), string(to), notes, at))
}

func (t *pgTx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return outbox.Insert(ctx, t.tx, evt)
}

func (t *pgTx) Idempotency(ctx context.Context, clientID, key string) ([]byte, bool, error) {
	return lookupIdempotency(ctx, t.tx, clientID, key)
}

func (p *Postgres) Idempotency(ctx context.Context, clientID, key string) ([]byte, bool, error) {
	return lookupIdempotency(ctx, p.conn, clientID, key)
}

func lookupIdempotency(ctx context.Context, q querier, clientID, key string) ([]byte, bool, error) {
	var payload string
	err := q.QueryRow(ctx, `
		SELECT response_payload::text
		FROM booking_idempotency_keys
		WHERE client_id = $1 AND idempotency_key = $2
	`, clientID, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(payload), true, nil
}

func (t *pgTx) SaveIdempotency(ctx context.Context, clientID, key, appointmentID string, response []byte) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (client_id, idempotency_key, appointment_id, response_payload)
		VALUES ($1, $2, $3, $4::jsonb)
	`, clientID, key, appointmentID, string(response))
	return err
}
