package nats

import (
	"context"
	"errors"
	"fmt"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
	"github.com/next-trace/scg-cmdr/internal/wire"
)

var routes = wire.Routes{Commands: "cmd.", Listeners: "listeners."}

// Client is the publish side of a NATS connection.
type Client interface {
	Publish(subject string, data []byte, headers map[string]string) error
}

// Adapter implements cbus.Adapter over a NATS Client.
type Adapter struct {
	Client     Client
	Propagator cbus.HeaderPropagator
}

var _ cbus.Adapter = (*Adapter)(nil)

// New creates a NATS adapter with the provided client.
func New(c Client) *Adapter { return &Adapter{Client: c, Propagator: cbus.NopHeaderPropagator{}} }

// NewWithPropagator also injects request context into every message's headers.
func NewWithPropagator(c Client, hp cbus.HeaderPropagator) *Adapter {
	return &Adapter{Client: c, Propagator: hp}
}

func (a *Adapter) EnqueueCommand(ctx context.Context, cmd cbus.Command, opts cbus.QueueOptions) error {
	return a.send(ctx, &envelope{
		subject: routes.Command(cmd, opts),
		payload: cmd,
		headers: wire.QueueHeaders(cmd, opts),
		wrap:    berr.ErrEnqueueFailed,
		label:   "enqueue",
	})
}

func (a *Adapter) EnqueueListener(
	ctx context.Context,
	e cbus.DomainEvent,
	handler string,
	opts cbus.QueueOptions,
) error {
	return a.send(ctx, &envelope{
		subject: routes.Listener(e, handler, opts),
		payload: e,
		headers: wire.ListenerHeaders(e, handler, opts),
		wrap:    berr.ErrEnqueueFailed,
		label:   "enqueue listener",
	})
}

func (a *Adapter) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	return a.send(ctx, &envelope{
		subject: wire.Topic(e, opts),
		payload: e,
		headers: wire.PublishHeaders(opts, true),
		wrap:    berr.ErrPublishFailed,
		label:   "publish",
	})
}

type envelope struct {
	subject string
	payload any
	headers map[string]string
	wrap    error
	label   string
}

func (a *Adapter) send(ctx context.Context, env *envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return fmt.Errorf("nats %s: %w", env.label, env.wrap)
	}

	body, err := wire.Encode(env.payload)
	if err != nil {
		return fmt.Errorf("nats %s serialize: %w", env.label, errors.Join(berr.ErrSerializationFailed, err))
	}

	if a.Propagator != nil {
		a.Propagator.Inject(ctx, env.headers)
	}

	if err := a.Client.Publish(env.subject, body, env.headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats %s publish: %w", env.label, errors.Join(env.wrap, err))
	}

	return nil
}
