package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
)

// Conn is satisfied by *db.Pool and pgxmock pools.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres implements booking.Store. Per-client mutual exclusion is a
// transaction-scoped advisory lock; the appointments exclusion constraint
// backs it up.
type Postgres struct {
	conn Conn
}

func NewPostgres(conn Conn) *Postgres {
	return &Postgres{conn: conn}
}

var _ booking.Store = (*Postgres)(nil)

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.ErrNotFound
	}
	return err
}

const clientColumns = `id::text, agency_id::text, name, booking_slug, COALESCE(email, ''), COALESCE(phone, ''), timezone, is_active, created_at`

func scanClient(row pgx.Row) (model.Client, error) {
	var c model.Client
	err := row.Scan(&c.ID, &c.AgencyID, &c.Name, &c.BookingSlug, &c.Email, &c.Phone, &c.Timezone, &c.IsActive, &c.CreatedAt)
	return c, notFound(err)
}

func (p *Postgres) ClientByRef(ctx context.Context, ref string) (model.Client, error) {
	if _, err := uuid.Parse(ref); err == nil {
		c, err := scanClient(p.conn.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, ref))
		if !errors.Is(err, booking.ErrNotFound) {
			return c, err
		}
	}
	return scanClient(p.conn.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE booking_slug = $1`, ref))
}

func (p *Postgres) CreateClient(ctx context.Context, c model.Client, s model.ClientSettings, rules []model.AvailabilityRule) (model.Client, error) {
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return model.Client{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO clients (id, agency_id, name, booking_slug, email, phone, timezone, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)
		RETURNING created_at
	`, c.ID, c.AgencyID, c.Name, c.BookingSlug, c.Email, c.Phone, c.Timezone, c.IsActive).Scan(&c.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return model.Client{}, booking.ErrDuplicate
		}
		return model.Client{}, fmt.Errorf("insert client: %w", err)
	}
	if err := saveSettings(ctx, tx, s); err != nil {
		return model.Client{}, err
	}
	if err := insertRules(ctx, tx, rules); err != nil {
		return model.Client{}, err
	}
	return c, tx.Commit(ctx)
}

func (p *Postgres) ListClients(ctx context.Context, agencyID string) ([]model.Client, error) {
	rows, err := p.conn.Query(ctx, `
		SELECT `+clientColumns+`
		FROM clients
		WHERE agency_id = $1
		ORDER BY created_at DESC, id
	`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateClient(ctx context.Context, c model.Client) (model.Client, error) {
	return scanClient(p.conn.QueryRow(ctx, `
		UPDATE clients
		SET name = $2, email = NULLIF($3, ''), phone = NULLIF($4, ''), timezone = $5, is_active = $6
		WHERE id = $1
		RETURNING `+clientColumns,
		c.ID, c.Name, c.Email, c.Phone, c.Timezone, c.IsActive))
}

// DeleteClient leaves owned rows to ON DELETE CASCADE.
func (p *Postgres) DeleteClient(ctx context.Context, clientID string) error {
	tag, err := p.conn.Exec(ctx, `DELETE FROM clients WHERE id = $1`, clientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (p *Postgres) Settings(ctx context.Context, clientID string) (model.ClientSettings, error) {
	s := model.ClientSettings{ClientID: clientID}
	err := p.conn.QueryRow(ctx, `
		SELECT appointment_duration_minutes, buffer_time_minutes, max_bookings_per_day, min_notice_hours, max_advance_days
		FROM client_settings
		WHERE client_id = $1
	`, clientID).Scan(&s.AppointmentDurationMinutes, &s.BufferTimeMinutes, &s.MaxBookingsPerDay, &s.MinNoticeHours, &s.MaxAdvanceDays)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultSettings(clientID), nil
	}
	return s, err
}

func (p *Postgres) SaveSettings(ctx context.Context, s model.ClientSettings) error {
	return saveSettings(ctx, p.conn, s)
}

func saveSettings(ctx context.Context, q querier, s model.ClientSettings) error {
	_, err := q.Exec(ctx, `
		INSERT INTO client_settings
			(client_id, appointment_duration_minutes, buffer_time_minutes, max_bookings_per_day, min_notice_hours, max_advance_days)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_id)
		DO UPDATE SET appointment_duration_minutes = EXCLUDED.appointment_duration_minutes,
		              buffer_time_minutes = EXCLUDED.buffer_time_minutes,
		              max_bookings_per_day = EXCLUDED.max_bookings_per_day,
		              min_notice_hours = EXCLUDED.min_notice_hours,
		              max_advance_days = EXCLUDED.max_advance_days,
		              updated_at = now()
	`, s.ClientID, s.AppointmentDurationMinutes, s.BufferTimeMinutes, s.MaxBookingsPerDay, s.MinNoticeHours, s.MaxAdvanceDays)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (p *Postgres) Rules(ctx context.Context, clientID string) ([]model.AvailabilityRule, error) {
	rows, err := p.conn.Query(ctx, `
		SELECT day_of_week, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), is_available
		FROM availability_rules
		WHERE client_id = $1
		ORDER BY day_of_week
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityRule
	for rows.Next() {
		r := model.AvailabilityRule{ClientID: clientID}
		if err := rows.Scan(&r.DayOfWeek, &r.StartTime, &r.EndTime, &r.IsAvailable); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) ReplaceRules(ctx context.Context, clientID string, rules []model.AvailabilityRule) error {
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM availability_rules WHERE client_id = $1`, clientID); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}
	if err := insertRules(ctx, tx, rules); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertRules(ctx context.Context, q querier, rules []model.AvailabilityRule) error {
	for _, r := range rules {
		_, err := q.Exec(ctx, `
			INSERT INTO availability_rules (client_id, day_of_week, start_time, end_time, is_available)
			VALUES ($1, $2, $3::time, $4::time, $5)
		`, r.ClientID, r.DayOfWeek, r.StartTime, r.EndTime, r.IsAvailable)
		if err != nil {
			return fmt.Errorf("insert rule %d: %w", r.DayOfWeek, err)
		}
	}
	return nil
}
