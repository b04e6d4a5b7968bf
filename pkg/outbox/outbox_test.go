package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

func orderPlaced(orderID uuid.UUID) DomainEvent {
	return DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         ActorFor(nil),
		Data:          payloads.OrderPlacedEvent{OrderID: orderID, Total: 530000},
	}
}

func TestEmitStoresEnvelopeKeyedByEventID(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewStore(conn)
	queue := NewQueue(store, nil)
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("ICT", 7*3600))
	queue.now = func() time.Time { return fixed }
	orderID := uuid.New()

	if err := conn.Transaction(func(tx *gorm.DB) error {
		return queue.Emit(context.Background(), tx, orderPlaced(orderID))
	}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	rows, err := store.FetchUnpublished(context.Background(), 10, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	env, err := Decode(rows[0].Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.EventID != rows[0].ID {
		t.Fatalf("expected row id %s to equal event id %s", rows[0].ID, env.EventID)
	}
	if env.EventID.Version() != 7 {
		t.Fatalf("expected time ordered event id, got version %d", env.EventID.Version())
	}
	if !env.OccurredAt.Equal(fixed) || env.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected occurredAt normalised to UTC, got %s", env.OccurredAt)
	}
	if env.Actor == nil || !env.Actor.Anonymous {
		t.Fatalf("expected anonymous actor, got %+v", env.Actor)
	}
	var data payloads.OrderPlacedEvent
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.OrderID != orderID || data.Total != 530000 {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	queue := NewQueue(NewStore(conn), nil)

	_ = conn.Transaction(func(tx *gorm.DB) error {
		if err := queue.Emit(context.Background(), tx, orderPlaced(uuid.New())); err != nil {
			t.Fatalf("emit: %v", err)
		}
		return errors.New("abort")
	})

	var count int64
	if err := conn.Model(&models.OutboxEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to discard event, got %d", count)
	}
}

func TestEmitRejectsInvalidEvents(t *testing.T) {
	conn := dbtest.Open(t)
	queue := NewQueue(NewStore(conn), nil)

	if err := queue.Emit(context.Background(), nil, orderPlaced(uuid.New())); err == nil {
		t.Fatalf("expected error without transaction")
	}

	bad := []DomainEvent{
		{EventType: "order_shipped", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()},
		{EventType: enums.EventOrderPlaced, AggregateType: "customer", AggregateID: uuid.New()},
		{EventType: enums.EventOrderPlaced, AggregateType: enums.AggregateOrder},
	}
	for _, event := range bad {
		err := conn.Transaction(func(tx *gorm.DB) error {
			return queue.Emit(context.Background(), tx, event)
		})
		if err == nil {
			t.Fatalf("expected %+v to be rejected", event)
		}
	}
}

func TestDecodeRejectsUnknownVersions(t *testing.T) {
	if _, err := Decode([]byte(`not-json`)); err == nil {
		t.Fatalf("expected malformed payload to fail")
	}
	if _, err := Decode([]byte(`{"version":2,"eventId":"` + uuid.NewString() + `","data":{}}`)); err == nil {
		t.Fatalf("expected future version to fail")
	}
	if _, err := Decode([]byte(`{"version":1,"data":{}}`)); err == nil {
		t.Fatalf("expected missing event id to fail")
	}
}

func TestStoreMarkPublishedAndFailed(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewStore(conn)
	ctx := context.Background()

	seed := func() models.OutboxEvent {
		row := models.OutboxEvent{EventType: enums.EventOrderPlaced, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
		if err := conn.Create(&row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
		return row
	}
	published, failing := seed(), seed()

	if err := store.MarkPublished(ctx, published.ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	if err := store.MarkFailed(ctx, failing.ID, errors.New(strings.Repeat("x", maxErrorLen+50))); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	rows, err := store.FetchUnpublished(ctx, 10, 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != failing.ID || rows[0].AttemptCount != 1 {
		t.Fatalf("unexpected pending rows %+v", rows)
	}
	if rows[0].LastError == nil || len(*rows[0].LastError) != maxErrorLen {
		t.Fatalf("expected last_error truncated to %d", maxErrorLen)
	}

	rows, err = store.FetchUnpublished(ctx, 10, 1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected exhausted event to be skipped, got %d", len(rows))
	}
}
