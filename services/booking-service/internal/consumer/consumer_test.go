package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/storage"
)

type fakeReader struct {
	mu   sync.Mutex
	msgs []kafka.Message
	done chan struct{}
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	select {
	case <-r.done:
	default:
		close(r.done)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error { return nil }

type fakeApplier struct {
	mu      sync.Mutex
	applied []model.BusyBlock
	deleted []bool
	errs    []error
}

func (f *fakeApplier) ApplyBusyBlock(_ context.Context, b model.BusyBlock, deleted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.applied = append(f.applied, b)
	f.deleted = append(f.deleted, deleted)
	return nil
}

func message(id, value string) kafka.Message {
	return kafka.Message{
		Topic: TopicBusyBlocksSynced,
		Value: []byte(value),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(id)},
			{Key: "event_type", Value: []byte(TopicBusyBlocksSynced)},
		},
	}
}

func run(t *testing.T, c *Consumer, r *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(finished)
	}()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	<-finished
}

func TestConsumerAppliesAndDeduplicates(t *testing.T) {
	payload := `{"client_id":"acme","source":"google","external_id":"ev-1","start_time":"2026-03-02T09:00:00Z","end_time":"2026-03-02T10:00:00Z"}`
	r := &fakeReader{done: make(chan struct{}), msgs: []kafka.Message{
		message("evt-1", payload),
		message("evt-1", payload),
		message("evt-2", `{"client_id":"acme","source":"google","external_id":"ev-1","deleted":true}`),
		message("evt-3", `not json`),
	}}
	applier := &fakeApplier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := newConsumer(r, logger, storage.NewMemory(), Config{}, BusyBlocks(applier))

	run(t, c, r)

	require.Len(t, applier.applied, 2)
	assert.Equal(t, "ev-1", applier.applied[0].ExternalID)
	assert.True(t, applier.applied[0].EndTime.Equal(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, []bool{false, true}, applier.deleted)
}

func TestConsumerRetriesTransientErrors(t *testing.T) {
	r := &fakeReader{done: make(chan struct{}), msgs: []kafka.Message{
		message("evt-1", `{"client_id":"acme","external_id":"ev-9","start_time":"2026-03-02T09:00:00Z","end_time":"2026-03-02T10:00:00Z"}`),
	}}
	applier := &fakeApplier{errs: []error{&booking.Error{Code: booking.CodeInternal, Err: errors.New("db down")}}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := newConsumer(r, logger, storage.NewMemory(), Config{Attempts: 2}, BusyBlocks(applier))
	c.backoff = time.Millisecond

	run(t, c, r)

	require.Len(t, applier.applied, 1)
	assert.Equal(t, "external", applier.applied[0].Source)
}

func TestBusyBlocksDropsUnknownClient(t *testing.T) {
	applier := &fakeApplier{errs: []error{&booking.Error{Code: booking.CodeNotFound}}}
	err := BusyBlocks(applier)(context.Background(), message("evt-1", `{"client_id":"nobody","external_id":"x"}`))
	assert.NoError(t, err)
}

func TestNewWithoutBrokers(t *testing.T) {
	assert.Nil(t, New(slog.Default(), storage.NewMemory(), Config{}, nil))
}
