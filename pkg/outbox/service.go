package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// DomainEvent is what business code hands to Emit. Data is marshalled into the
// envelope's data field.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("unknown event type %q", e.EventType)
	case !e.AggregateType.IsValid():
		return fmt.Errorf("unknown aggregate type %q", e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return errors.New("aggregate id required")
	}
	return nil
}

// Queue appends domain events to outbox_events inside the caller's transaction,
// so an event exists exactly when the business change that caused it committed.
type Queue struct {
	store *Store
	logg  *logger.Logger
	now   func() time.Time
}

func NewQueue(store *Store, logg *logger.Logger) *Queue {
	return &Queue{store: store, logg: logg, now: time.Now}
}

// Emit stores event with tx. The event id is a UUIDv7 and doubles as the row id.
func (q *Queue) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("outbox emit requires a transaction")
	}
	if err := event.validate(); err != nil {
		return err
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	eventID, err := uuid.NewV7()
	if err != nil {
		return err
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = q.now()
	}
	payload, err := json.Marshal(Envelope{
		Version:    SchemaVersion,
		EventID:    eventID,
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	})
	if err != nil {
		return err
	}

	row := &models.OutboxEvent{
		ID:            eventID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}
	if err := q.store.Append(tx.WithContext(ctx), row); err != nil {
		return fmt.Errorf("append %s: %w", event.EventType, err)
	}

	if q.logg != nil {
		q.logg.Debug(q.logg.WithFields(ctx, map[string]any{
			"event_id":     eventID.String(),
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		}), "outbox.queued")
	}
	return nil
}
