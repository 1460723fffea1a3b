package outbox

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestRepositoryPublishBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	rows := pgxmock.NewRows([]string{"id", "event_id", "aggregate_type", "aggregate_id", "event_type", "payload", "traceparent", "tracestate"}).
		AddRow(int64(7), "evt-7", "appointment", "appt-1", EventAppointmentConfirmed, []byte(`{}`), "", "")
	mock.ExpectQuery("SELECT id, event_id").WithArgs(10).WillReturnRows(rows)
	mock.ExpectExec("UPDATE outbox_events").WithArgs([]int64{7}).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	repo := NewRepository(mock)
	var seen []Record
	n, err := repo.PublishBatch(context.Background(), 10, func(_ context.Context, recs []Record) error {
		seen = recs
		return nil
	})
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if seen[0].EventID != "evt-7" || seen[0].Event.AggregateID != "appt-1" {
		t.Fatalf("unexpected record %+v", seen[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryPublishBatchRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	rows := pgxmock.NewRows([]string{"id", "event_id", "aggregate_type", "aggregate_id", "event_type", "payload", "traceparent", "tracestate"}).
		AddRow(int64(1), "evt-1", "appointment", "appt-1", EventAppointmentConfirmed, []byte(`{}`), "", "")
	mock.ExpectQuery("SELECT id, event_id").WithArgs(5).WillReturnRows(rows)
	mock.ExpectRollback()

	repo := NewRepository(mock)
	_, err = repo.PublishBatch(context.Background(), 5, func(context.Context, []Record) error {
		return errors.New("kafka unavailable")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	evt := Event{AggregateType: "appointment", AggregateID: "a1", EventType: EventAppointmentConfirmed, Payload: []byte(`{}`)}
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("appointment", "a1", EventAppointmentConfirmed, []byte(`{}`), "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := Insert(context.Background(), mock, evt); err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
