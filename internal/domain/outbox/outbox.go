// Package outbox defines the publish/subscribe ports between the catalog and its transport.
package outbox

import "context"

// Event is anything routable to a channel. EventName is the channel name, so the transport
// resolves topics from it.
type Event interface {
	EventName() string
}

// Handler consumes one delivery. A non-nil error leaves the delivery unacknowledged.
type Handler func(ctx context.Context, e Event) error

// Publisher hands an event to the transport. Implementations are the in-memory bus and the
// Kafka producer.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber attaches a handler to a channel name.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
