package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"maps"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
	"github.com/next-trace/scg-cmdr/internal/wire"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Routes names the queues jobs are published to. Workers consume the same names.
var Routes = wire.Routes{Commands: "cmd.", Listeners: "listener."}

// PubMsg is one AMQP publishing.
type PubMsg struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

// Publisher sends a PubMsg to the broker.
type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

// Adapter implements cbus.Adapter over a Publisher. Jobs go to the default
// exchange routed by queue name; integration events go to the topic exchange.
type Adapter struct {
	Publisher  Publisher
	Propagator cbus.HeaderPropagator // optional, for context propagation into headers
}

var _ cbus.Adapter = (*Adapter)(nil)

func New(p Publisher) *Adapter { return &Adapter{Publisher: p} }

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(p Publisher, hp cbus.HeaderPropagator) *Adapter {
	return &Adapter{Publisher: p, Propagator: hp}
}

func (a *Adapter) EnqueueCommand(ctx context.Context, cmd cbus.Command, opts cbus.QueueOptions) error {
	return a.send(ctx, "", Routes.Command(cmd, opts), cmd, wire.QueueHeaders(cmd, opts), berr.ErrEnqueueFailed, "enqueue")
}

func (a *Adapter) EnqueueListener(
	ctx context.Context,
	e cbus.DomainEvent,
	handler string,
	opts cbus.QueueOptions,
) error {
	return a.send(
		ctx, "", Routes.Listener(e, handler, opts), e,
		wire.ListenerHeaders(e, handler, opts), berr.ErrEnqueueFailed, "enqueue listener",
	)
}

func (a *Adapter) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	return a.send(
		ctx, integrationExchange, wire.Topic(e, opts), e,
		wire.PublishHeaders(opts, true), berr.ErrPublishFailed, "publish",
	)
}

func (a *Adapter) send(
	ctx context.Context,
	exchange, routingKey string,
	payload any,
	headers map[string]string,
	wrap error,
	label string,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Publisher == nil {
		return fmt.Errorf("rabbitmq %s: %w", label, wrap)
	}

	body, err := wire.Encode(payload)
	if err != nil {
		return fmt.Errorf("rabbitmq %s serialize: %w", label, errors.Join(berr.ErrSerializationFailed, err))
	}

	if a.Propagator != nil {
		a.Propagator.Inject(ctx, headers)
	}

	msg := PubMsg{Exchange: exchange, RoutingKey: routingKey, Body: body, Headers: headers}
	if err := a.Publisher.Publish(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq %s publish: %w", label, errors.Join(wrap, err))
	}

	return nil
}

func toTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}

	t := make(amqp.Table, len(headers))
	for k, v := range headers {
		t[k] = v
	}

	return t
}

// FromTable converts delivery headers back into a string map for workers.
func FromTable(t amqp.Table) map[string]string {
	h := make(map[string]string, len(t))
	for k, v := range t {
		if s, ok := v.(string); ok {
			h[k] = s
		} else {
			h[k] = fmt.Sprint(v)
		}
	}

	return h
}

type amqpChannelPublisher struct{ ch *amqp.Channel }

func (p amqpChannelPublisher) Publish(ctx context.Context, m PubMsg) error {
	return p.ch.PublishWithContext(ctx, m.Exchange, m.RoutingKey, false, false, amqp.Publishing{
		Headers:     toTable(maps.Clone(m.Headers)),
		Body:        m.Body,
		ContentType: "application/json",
	})
}

// NewWithAMQPChannel wraps an already open channel without reconnect handling.
func NewWithAMQPChannel(ch *amqp.Channel) *Adapter {
	return &Adapter{Publisher: amqpChannelPublisher{ch: ch}}
}
