package servicebus

import (
	"context"
	"fmt"
	"reflect"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
	"github.com/next-trace/scg-cmdr/registry"
)

// Call describes one handler invocation inside an execution chain.
type Call struct {
	Message cbus.Message
	Type    cbus.MessageType
	Binding *registry.Binding
	// Depth is 0 for the message passed to Execute and grows by one for
	// every command emitted below it.
	Depth int
}

// Invoker runs one handler and returns the drained items it produced.
type Invoker func(ctx context.Context, call Call) ([]any, error)

// Middleware wraps handler invocation, including invocations of emitted commands.
type Middleware func(next Invoker) Invoker

func chain(final Invoker, mws []Middleware) Invoker {
	for i := len(mws) - 1; i >= 0; i-- {
		final = mws[i](final)
	}

	return final
}

func callHandler(ctx context.Context, call Call) ([]any, error) {
	res, err := call.Binding.Invoke(ctx, call.Message)
	if err != nil {
		return nil, err
	}

	return res.Drain()
}

// Execute runs m through its binding and returns the items the handler
// produced, in emission order. Emitted commands are executed depth-first
// before the next sibling item; emitted domain events are passed to the
// publish hook; other items are plain data. Results of nested commands are
// not returned.
//
// A message without a binding fails with ErrHandlerNotFound before any
// handler runs. Handler errors are returned unchanged and abort the rest of
// the chain; effects of already executed commands remain.
func (b *Bus) Execute(ctx context.Context, m cbus.Message) ([]any, error) {
	return b.execute(ctx, m, 0)
}

func (b *Bus) execute(ctx context.Context, m cbus.Message, depth int) ([]any, error) {
	if m == nil {
		return nil, fmt.Errorf("execute <nil>: %w", berr.ErrHandlerNotFound)
	}

	mt := cbus.TypeOfMessage(m)
	if rv := reflect.ValueOf(m); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil, fmt.Errorf("execute nil %s: %w", mt, berr.ErrHandlerNotFound)
	}

	bindings := b.bindingsFor(mt)
	if len(bindings) == 0 {
		return nil, fmt.Errorf("execute %s: %w", mt, berr.ErrHandlerNotFound)
	}

	if depth >= b.maxDepth {
		return nil, &berr.RecursionLimitError{Message: mt.String(), Depth: depth}
	}

	var produced []any

	for _, bd := range bindings {
		items, err := b.invoke(ctx, Call{Message: m, Type: mt, Binding: bd, Depth: depth})
		if err != nil {
			return nil, err
		}

		produced = append(produced, items...)
	}

	for _, item := range produced {
		switch v := item.(type) {
		case cbus.Command:
			if _, err := b.execute(ctx, v, depth+1); err != nil {
				return nil, err
			}
		case cbus.DomainEvent:
			if err := b.hook.Publish(ctx, v); err != nil {
				return nil, err
			}
		}
	}

	return produced, nil
}

// bindingsFor returns the single binding of a command or query, or every
// observer of a domain event in registration order.
func (b *Bus) bindingsFor(mt cbus.MessageType) []*registry.Binding {
	if mt.Exclusive() {
		bd, ok := b.reg.Find(mt)
		if !ok {
			return nil
		}

		return []*registry.Binding{bd}
	}

	return b.reg.FindAll(mt)
}
