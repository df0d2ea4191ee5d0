package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	berr "github.com/next-trace/scg-cmdr/contract/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer processes one delivered job.
type Consumer func(ctx context.Context, data []byte, headers map[string]string) error

// Consume declares a durable queue per name and feeds deliveries to consume
// until ctx ends. Jobs reach these queues through the default exchange, so no
// bindings are needed. Successful jobs are acked and failed ones are rejected
// without requeue.
func Consume(ctx context.Context, cfg Config, queues []string, consume Consumer) error {
	if cfg.URL == "" || len(queues) == 0 {
		return fmt.Errorf("%w: rabbitmq url and queues required", berr.ErrEnqueueFailed)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Properties: amqp.Table{"product": "scg-cmdr"},
		Dial:       amqp.DefaultDial(cfg.ConnTimeout),
	})
	if err != nil {
		return fmt.Errorf("%w: rabbitmq dial: %w", berr.ErrEnqueueFailed, err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: rabbitmq channel: %w", berr.ErrEnqueueFailed, err)
	}
	defer ch.Close()

	deliveries := make(chan amqp.Delivery)

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("%w: rabbitmq declare %s: %w", berr.ErrEnqueueFailed, q, err)
		}

		dc, err := ch.ConsumeWithContext(ctx, q, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("%w: rabbitmq consume %s: %w", berr.ErrEnqueueFailed, q, err)
		}

		go func() {
			for d := range dc {
				select {
				case deliveries <- d:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			return fmt.Errorf("%w: rabbitmq connection closed: %v", berr.ErrEnqueueFailed, amqpErr)
		case d := <-deliveries:
			if err := consume(ctx, d.Body, FromTable(d.Headers)); err != nil {
				log.Error("rabbitmq job failed", "queue", d.RoutingKey, "err", err)
				_ = d.Reject(false)

				continue
			}

			_ = d.Ack(false)
		}
	}
}
