package domain

import "time"

type EventKind string

const (
	EventOrderConfirmed EventKind = "order.confirmed"
	EventOrderCancelled EventKind = "order.cancelled"
)

// OrderEvent is emitted by the host application when an order changes state.
type OrderEvent struct {
	Kind      EventKind `json:"type"`
	Order     OrderRef  `json:"order"`
	Timestamp time.Time `json:"timestamp"`
}

// EventBus fans order events out to subscribed handlers. Dispatch is
// decoupled from the publisher so a failing handler can never fail the
// state transition that produced the event.
type EventBus interface {
	Publish(evt OrderEvent)
	On(kind EventKind, handler func(OrderEvent))
	Close()
}
