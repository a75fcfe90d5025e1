package enums

import "slices"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const AggregateOrder OutboxAggregateType = "order"

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregateOrder
}

// OutboxEventType is the routing key for a relayed domain event. Each value
// maps to a Pub/Sub topic in the publisher registry.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order.created"
	EventOrderStatusChanged OutboxEventType = "order.status_changed"
	EventOrderDeleted       OutboxEventType = "order.deleted"
)

// OutboxEventTypes lists every event the order engine emits.
func OutboxEventTypes() []OutboxEventType {
	return []OutboxEventType{EventOrderCreated, EventOrderStatusChanged, EventOrderDeleted}
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(OutboxEventTypes(), e)
}
