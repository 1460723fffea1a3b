package storage

import "context"

// Record stores an inbound event id; false means the event was already seen.
func (p *Postgres) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	_, err := p.conn.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}
