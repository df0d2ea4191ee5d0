package registry

import (
	"context"
	"fmt"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
)

// Binding pairs one message type with one invocable unit. It is immutable.
type Binding struct {
	message cbus.MessageType
	owner   string
	name    string
	// build returns the invocable for a single call. Owner bindings construct
	// a fresh owner instance each time, so no handler state survives a call.
	build func() cbus.UntypedHandlerFunc
}

// Message returns the bound message type.
func (b *Binding) Message() cbus.MessageType { return b.message }

// Owner returns the owning type name, or "" for free functions.
func (b *Binding) Owner() string { return b.owner }

// Name returns the handler function or method name.
func (b *Binding) Name() string { return b.name }

func (b *Binding) String() string {
	if b.owner == "" {
		return fmt.Sprintf("Handler<%s>", b.name)
	}

	return fmt.Sprintf("Handler<%s.%s>", b.owner, b.name)
}

// Invoke constructs the invocable and calls it with m. Handler errors are
// returned unchanged.
func (b *Binding) Invoke(ctx context.Context, m cbus.Message) (cbus.Result, error) {
	if m == nil || cbus.TypeOfMessage(m) != b.message {
		return cbus.None(), fmt.Errorf("invoke %s with %T: %w", b, m, berr.ErrHandlerTypeMismatch)
	}

	return b.build()(ctx, m)
}
