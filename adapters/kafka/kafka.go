// Package kafka carries queued jobs and integration events as Kafka records.
package kafka

import (
	"context"
	"errors"
	"fmt"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
	"github.com/next-trace/scg-cmdr/internal/wire"
)

// Routes names the topics jobs are produced to. Workers consume the same names.
var Routes = wire.Routes{Commands: "jobs.", Listeners: "listeners."}

// Writer produces one record. Users can adapt any Kafka client to this.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Adapter implements cbus.Adapter using an injected Writer.
type Adapter struct {
	Writer     Writer
	Propagator cbus.HeaderPropagator
}

var _ cbus.Adapter = (*Adapter)(nil)

func New(w Writer) *Adapter { return &Adapter{Writer: w} }

// NewWithPropagator also injects request context into record headers.
func NewWithPropagator(w Writer, hp cbus.HeaderPropagator) *Adapter {
	return &Adapter{Writer: w, Propagator: hp}
}

func (a *Adapter) EnqueueCommand(ctx context.Context, cmd cbus.Command, opts cbus.QueueOptions) error {
	return a.write(ctx, record{
		topic:   Routes.Command(cmd, opts),
		payload: cmd,
		headers: wire.QueueHeaders(cmd, opts),
	}, false)
}

func (a *Adapter) EnqueueListener(
	ctx context.Context,
	e cbus.DomainEvent,
	handler string,
	opts cbus.QueueOptions,
) error {
	return a.write(ctx, record{
		topic:   Routes.Listener(e, handler, opts),
		payload: e,
		headers: wire.ListenerHeaders(e, handler, opts),
	}, false)
}

// PublishIntegration uses the native record key, so the key is not repeated in headers.
func (a *Adapter) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	var key []byte
	if opts.Key != "" {
		key = []byte(opts.Key)
	}

	return a.write(ctx, record{
		topic:   wire.Topic(e, opts),
		key:     key,
		payload: e,
		headers: wire.PublishHeaders(opts, false),
	}, true)
}

type record struct {
	topic   string
	key     []byte
	payload any
	headers map[string]string
}

func (a *Adapter) write(ctx context.Context, r record, publish bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Writer == nil {
		return wrapProduceErr(r.topic, errors.New("no writer configured"), publish)
	}

	val, err := wire.Encode(r.payload)
	if err != nil {
		return fmt.Errorf("kafka serialize %q: %w", r.topic, errors.Join(berr.ErrSerializationFailed, err))
	}

	if a.Propagator != nil {
		a.Propagator.Inject(ctx, r.headers)
	}

	if err := a.Writer.Write(ctx, r.topic, r.key, val, r.headers); err != nil {
		return wrapProduceErr(r.topic, err, publish)
	}

	return nil
}

// wrapProduceErr keeps context errors bare and tags the rest with the operation code.
func wrapProduceErr(topic string, err error, publish bool) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if publish {
		return fmt.Errorf("%w: kafka publish to %q: %w", berr.ErrPublishFailed, topic, err)
	}

	return fmt.Errorf("%w: kafka enqueue to %q: %w", berr.ErrEnqueueFailed, topic, err)
}
