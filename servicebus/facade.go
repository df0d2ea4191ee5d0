package servicebus

import (
	"context"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
)

// CommandBus is a thin facade over Bus for callers that only send commands.
type CommandBus struct{ b *Bus }

// NewCommandBus constructs a CommandBus over a Bus.
func NewCommandBus(b *Bus) *CommandBus { return &CommandBus{b: b} }

// Dispatch enqueues or executes the command, see Bus.Dispatch.
func (c *CommandBus) Dispatch(ctx context.Context, cmd cbus.Command) error {
	return c.b.Dispatch(ctx, cmd)
}

// Execute runs the command synchronously and returns what its handler produced.
func (c *CommandBus) Execute(ctx context.Context, cmd cbus.Command) ([]any, error) {
	return c.b.Execute(ctx, cmd)
}

// QueryBus is a thin facade over Bus for read-only callers.
type QueryBus struct{ b *Bus }

// NewQueryBus constructs a QueryBus over a Bus.
func NewQueryBus(b *Bus) *QueryBus { return &QueryBus{b: b} }

// Ask executes a query and returns every produced item.
func (q *QueryBus) Ask(ctx context.Context, query cbus.Query) ([]any, error) {
	return q.b.Execute(ctx, query)
}

// AskGeneric is a typed helper to execute queries via a QueryBus.
func AskGeneric[Q cbus.Query, R any](ctx context.Context, qb *QueryBus, query Q) (R, error) {
	return Ask[Q, R](ctx, qb.b, query)
}
