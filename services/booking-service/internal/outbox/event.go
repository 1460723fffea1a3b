package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	otelx "github.com/md-rashed-zaman/bookwell/libs/otel"
)

const (
	EventAppointmentConfirmed = "booking.appointment.confirmed.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
	EventAppointmentUpdated   = "booking.appointment.status_changed.v1"
)

// Event is the envelope written to the outbox table in the same transaction
// as the state change. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
}

// NewEvent marshals payload and captures the caller's trace context so the
// publisher can continue the trace.
func NewEvent(ctx context.Context, aggregateID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	tp, ts := otelx.TraceContextStrings(ctx)
	return Event{
		AggregateType: "appointment",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
		Traceparent:   tp,
		Tracestate:    ts,
	}, nil
}

// Record is a stored, not yet published event.
type Record struct {
	ID      int64
	EventID string
	Event   Event
}
