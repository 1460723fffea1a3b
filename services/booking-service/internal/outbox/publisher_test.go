package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/bookwell/libs/kafkax"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type sliceSource struct {
	pending   []Record
	published []int64
}

func (s *sliceSource) PublishBatch(ctx context.Context, limit int, fn func(context.Context, []Record) error) (int, error) {
	batch := s.pending
	if len(batch) > limit {
		batch = batch[:limit]
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}
	for _, r := range batch {
		s.published = append(s.published, r.ID)
	}
	s.pending = s.pending[len(batch):]
	return len(batch), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishOnce(t *testing.T) {
	src := &sliceSource{pending: []Record{
		{ID: 1, EventID: "e1", Event: Event{AggregateID: "a1", EventType: EventAppointmentConfirmed, Payload: []byte(`{}`)}},
		{ID: 2, EventID: "e2", Event: Event{AggregateID: "a2", EventType: EventAppointmentCancelled, Payload: []byte(`{}`)}},
		{ID: 3, EventID: "e3", Event: Event{AggregateID: "a3", EventType: EventAppointmentConfirmed, Payload: []byte(`{}`)}},
	}}
	w := &fakeWriter{}
	p := newPublisher(src, w, discardLogger(), PublisherConfig{BatchSize: 2})

	n, err := p.PublishOnce(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("first batch: n=%d err=%v", n, err)
	}
	if len(w.msgs) != 2 || w.msgs[0].Topic != EventAppointmentConfirmed || string(w.msgs[0].Key) != "a1" {
		t.Fatalf("unexpected messages: %+v", w.msgs)
	}
	if kafkax.HeaderValue(w.msgs[1].Headers, "event_id") != "e2" {
		t.Fatalf("missing event_id header")
	}

	n, err = p.PublishOnce(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("second batch: n=%d err=%v", n, err)
	}
}

func TestPublishOnceKeepsEventsOnWriteFailure(t *testing.T) {
	src := &sliceSource{pending: []Record{{ID: 1, EventID: "e1", Event: Event{EventType: EventAppointmentConfirmed}}}}
	p := newPublisher(src, &fakeWriter{err: errors.New("broker down")}, discardLogger(), PublisherConfig{})

	if _, err := p.PublishOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if len(src.pending) != 1 || len(src.published) != 0 {
		t.Fatalf("event should remain pending")
	}
}

func TestNewPublisherWithoutBrokers(t *testing.T) {
	if p := NewPublisher(&sliceSource{}, discardLogger(), PublisherConfig{}); p != nil {
		t.Fatalf("expected nil publisher when brokers are empty")
	}
}

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent(context.Background(), "appt-1", EventAppointmentConfirmed, map[string]string{"client_id": "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if evt.AggregateType != "appointment" || string(evt.Payload) != `{"client_id":"c1"}` {
		t.Fatalf("unexpected event %+v", evt)
	}
}
