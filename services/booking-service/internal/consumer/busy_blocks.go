package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
)

const TopicBusyBlocksSynced = "calendar.busy_blocks.synced.v1"

type BusyBlockApplier interface {
	ApplyBusyBlock(ctx context.Context, b model.BusyBlock, deleted bool) error
}

type busyBlockEvent struct {
	ClientID   string    `json:"client_id"`
	Source     string    `json:"source"`
	ExternalID string    `json:"external_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Deleted    bool      `json:"deleted"`
}

// BusyBlocks applies calendar sync events. Malformed payloads and unknown
// clients are dropped rather than retried.
func BusyBlocks(svc BusyBlockApplier) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt busyBlockEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return nil
		}
		if evt.Source == "" {
			evt.Source = "external"
		}
		err := svc.ApplyBusyBlock(ctx, model.BusyBlock{
			ClientID:   evt.ClientID,
			Source:     evt.Source,
			ExternalID: evt.ExternalID,
			StartTime:  evt.StartTime.UTC(),
			EndTime:    evt.EndTime.UTC(),
		}, evt.Deleted)
		switch booking.CodeOf(err) {
		case "", booking.CodeNotFound, booking.CodeValidation:
			return nil
		default:
			return fmt.Errorf("apply busy block %s/%s: %w", evt.Source, evt.ExternalID, err)
		}
	}
}
