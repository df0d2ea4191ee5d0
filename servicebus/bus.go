package servicebus

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
	"github.com/next-trace/scg-cmdr/registry"
)

// DefaultMaxDepth bounds nested command execution when no limit is configured.
const DefaultMaxDepth = 64

// Bus is a synchronous in-process mediator over a frozen registry.
//
// Bus holds no mutable state after construction and is safe for concurrent use.
type Bus struct {
	reg      *registry.Registry
	hook     cbus.EventHook
	enq      cbus.JobEnqueuer
	pub      cbus.EventPublisher
	mw       []Middleware
	invoke   Invoker
	maxDepth int
	logger   *slog.Logger
}

// Option configures a Bus instance.
type Option func(*Bus)

// WithEventHook sets the publish hook that receives emitted domain events.
func WithEventHook(h cbus.EventHook) Option {
	return func(b *Bus) { b.hook = h }
}

// WithEnqueuer sets the task queue used by Dispatch for Queueable commands.
func WithEnqueuer(e cbus.JobEnqueuer) Option {
	return func(b *Bus) { b.enq = e }
}

// WithPublisher sets the integration event publisher.
func WithPublisher(p cbus.EventPublisher) Option {
	return func(b *Bus) { b.pub = p }
}

// WithAdapter sets both the enqueuer and the publisher from one transport.
func WithAdapter(a cbus.Adapter) Option {
	return func(b *Bus) {
		b.enq = a
		b.pub = a
	}
}

// WithMiddleware appends invocation middleware. Middlewares run in registration order.
func WithMiddleware(mw ...Middleware) Option {
	return func(b *Bus) { b.mw = append(b.mw, mw...) }
}

// WithMaxDepth bounds how many nested executions one chain may reach.
// Non-positive values keep DefaultMaxDepth.
func WithMaxDepth(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.maxDepth = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New constructs a Bus over reg. The registry is frozen here, so every
// registration must happen before the first bus is built.
func New(reg *registry.Registry, opts ...Option) *Bus {
	b := &Bus{
		reg:      reg.Freeze(),
		hook:     cbus.NopEventHook{},
		maxDepth: DefaultMaxDepth,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, o := range opts {
		o(b)
	}

	if b.hook == nil {
		b.hook = cbus.NopEventHook{}
	}

	b.invoke = chain(callHandler, b.mw)

	return b
}

var _ cbus.Bus = (*Bus)(nil)

// Registry returns the frozen registry the bus dispatches from.
func (b *Bus) Registry() *registry.Registry { return b.reg }

// Dispatch enqueues the command when it implements Queueable and an enqueuer
// is configured; otherwise it executes synchronously and discards the results.
func (b *Bus) Dispatch(ctx context.Context, cmd cbus.Command) error {
	if q, ok := cmd.(cbus.Queueable); ok && b.enq != nil {
		qo := cbus.QueueOptionsFor(q)
		b.logger.DebugContext(ctx, "enqueue command", "command", fmt.Sprintf("%T", cmd), "queue", qo.Queue)

		return b.enq.EnqueueCommand(ctx, cmd, qo)
	}

	_, err := b.Execute(ctx, cmd)

	return err
}

// Ask executes a query and returns the first produced item of type R.
func Ask[Q cbus.Query, R any](ctx context.Context, b *Bus, q Q) (R, error) {
	var zero R

	items, err := b.Execute(ctx, q)
	if err != nil {
		return zero, err
	}

	for _, it := range items {
		if r, ok := it.(R); ok {
			return r, nil
		}
	}

	return zero, fmt.Errorf("ask %T: %w", q, berr.ErrHandlerTypeMismatch)
}

// PublishIntegration publishes an integration event via the configured EventPublisher.
func (b *Bus) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	if b.pub == nil {
		return fmt.Errorf("publish integration %T: %w", e, berr.ErrAsyncNotConfigured)
	}

	return b.pub.PublishIntegration(ctx, e, opts)
}

// Close is a no-op; transports own their connections.
func (b *Bus) Close() error { return nil }
