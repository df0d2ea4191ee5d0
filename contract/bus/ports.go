package bus

import "context"

// IntegrationEvent leaves the process through an EventPublisher. It is not a
// Message: handlers never receive it and the registry never binds it.
type IntegrationEvent interface {
	Topic() string
}

// QueueOptions describe where and how a queued job is delivered.
type QueueOptions struct {
	// Queue overrides the route derived from the message type name.
	Queue string
	// DelaySeconds is carried as a header; the broker decides how to honor it.
	DelaySeconds int
	// Tries is the attempt budget a worker grants the job; zero means the worker default.
	Tries   int
	Headers map[string]string
}

// PublishOptions control one integration event publication.
type PublishOptions struct {
	TopicOverride string
	// Key partitions the event where the broker supports keys.
	Key     string
	Headers map[string]string
}

// JobEnqueuer hands commands and event listeners to an asynchronous task queue.
// The queue owns retries and delivery guarantees; the bus only enqueues.
type JobEnqueuer interface {
	EnqueueCommand(ctx context.Context, cmd Command, opts QueueOptions) error
	EnqueueListener(ctx context.Context, evt DomainEvent, handler string, opts QueueOptions) error
}

// EventPublisher publishes integration events to a broker.
type EventPublisher interface {
	PublishIntegration(ctx context.Context, evt IntegrationEvent, opts PublishOptions) error
}

// Adapter is a transport that both enqueues jobs and publishes integration
// events: inmemory, nats, rabbitmq or kafka.
type Adapter interface {
	JobEnqueuer
	EventPublisher
}
