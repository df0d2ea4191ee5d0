package bus

import "context"

// Bus is the tech-agnostic interface of the dispatcher. Typed helpers remain
// available as generic functions in the servicebus package.
type Bus interface {
	// Execute runs the handler chain rooted at m and returns the items
	// produced by the handler bound to m.
	Execute(ctx context.Context, m Message) ([]any, error)

	// Dispatch enqueues Queueable commands when an enqueuer is configured
	// and executes everything else synchronously.
	Dispatch(ctx context.Context, cmd Command) error

	// PublishIntegration forwards an integration event to the configured EventPublisher.
	PublishIntegration(ctx context.Context, event IntegrationEvent, opts PublishOptions) error

	// Close releases resources held by the bus.
	Close() error
}

// EventHook receives domain events produced during execution.
// Systems that need subscribers attach them here, not to the registry.
type EventHook interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// NopEventHook discards every event.
type NopEventHook struct{}

func (NopEventHook) Publish(ctx context.Context, event DomainEvent) error {
	_ = ctx
	_ = event

	return nil
}
