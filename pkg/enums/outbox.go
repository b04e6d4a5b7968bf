package enums

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "order"
	AggregatePendingCheckout OutboxAggregateType = "pending_checkout"
)

var aggregateTypes = newClosedSet("aggregate type", AggregateOrder, AggregatePendingCheckout)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

// OutboxEventType is published as the event_type message attribute.
type OutboxEventType string

const (
	EventOrderPlaced      OutboxEventType = "order_placed"
	EventPaymentCaptured  OutboxEventType = "payment_captured"
	EventPaymentAbandoned OutboxEventType = "payment_abandoned"
)

var eventTypes = newClosedSet("outbox event type", EventOrderPlaced, EventPaymentCaptured, EventPaymentAbandoned)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }
