package bus

import "context"

// HandlerFunc handles messages of type M.
// Implementations must be safe for concurrent use by multiple goroutines.
type HandlerFunc[M Message] func(ctx context.Context, m M) (Result, error)

// UntypedHandlerFunc handles any message it was explicitly associated with.
// It is used when one function serves several message shapes.
type UntypedHandlerFunc func(ctx context.Context, m Message) (Result, error)

// CapabilityDeclarer is implemented by handler-owning types that declare the
// message types they are obliged to handle. Registration fails when a declared
// type has no discovered binding on the owner.
type CapabilityDeclarer interface {
	Capabilities() []MessageType
}

// Handles is a convenience for building capability lists.
func Handles(types ...MessageType) []MessageType { return types }

// EventListener observes domain events of type E through the publish hook.
// Listeners that also implement QueueableListener may be enqueued instead of invoked.
type EventListener[E DomainEvent] interface {
	Handle(ctx context.Context, e E) error
}
