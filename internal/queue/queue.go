package queue

import (
	"context"
)

// Publisher publishes event messages to the events queue.
type Publisher interface {
	Publish(ctx context.Context, msg EventMessage) error
	Close() error
}

// MessageHandler handles a consumed event message.
type MessageHandler func(ctx context.Context, msg EventMessage) error

// Consumer consumes event messages from the events queue.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
	Close() error
}

const (
	// EventsQueueName is the single work queue all device shims publish to.
	EventsQueueName = "events"

	// EventsDLQName receives messages rejected as malformed.
	EventsDLQName = "dlq.events"

	eventsRoutingKey = "events"
)
