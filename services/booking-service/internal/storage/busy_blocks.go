package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
)

func (p *Postgres) ListBusyBlocks(ctx context.Context, clientID string, from, to time.Time) ([]model.BusyBlock, error) {
	return listBusyBlocks(ctx, p.conn, clientID, from, to)
}

func listBusyBlocks(ctx context.Context, q querier, clientID string, from, to time.Time) ([]model.BusyBlock, error) {
	rows, err := q.Query(ctx, `
		SELECT client_id::text, source, external_id, start_time, end_time
		FROM busy_blocks
		WHERE client_id = $1
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, clientID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BusyBlock
	for rows.Next() {
		var b model.BusyBlock
		if err := rows.Scan(&b.ClientID, &b.Source, &b.ExternalID, &b.StartTime, &b.EndTime); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertBusyBlock(ctx context.Context, b model.BusyBlock) error {
	_, err := p.conn.Exec(ctx, `
		INSERT INTO busy_blocks (client_id, source, external_id, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id, source, external_id)
		DO UPDATE SET start_time = EXCLUDED.start_time,
		              end_time = EXCLUDED.end_time,
		              updated_at = now()
	`, b.ClientID, b.Source, b.ExternalID, b.StartTime, b.EndTime)
	return err
}

func (p *Postgres) DeleteBusyBlock(ctx context.Context, clientID, source, externalID string) (model.BusyBlock, error) {
	b := model.BusyBlock{ClientID: clientID, Source: source, ExternalID: externalID}
	err := p.conn.QueryRow(ctx, `
		DELETE FROM busy_blocks
		WHERE client_id = $1 AND source = $2 AND external_id = $3
		RETURNING start_time, end_time
	`, clientID, source, externalID).Scan(&b.StartTime, &b.EndTime)
	return b, notFound(err)
}
