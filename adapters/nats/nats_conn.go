package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
)

// Config holds connection settings for NewWithNATS.
type Config struct {
	URL           string
	Name          string
	ConnTimeout   time.Duration
	MaxReconnects int
}

type natsClient struct{ nc *nats.Conn }

func (c natsClient) Publish(subject string, data []byte, headers map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data}

	if len(headers) > 0 {
		msg.Header = nats.Header{}
		for k, v := range headers {
			msg.Header.Set(k, v)
		}
	}

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	return c.nc.Flush()
}

// Connect dials NATS with the configured options.
func Connect(cfg Config) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: nats url required", berr.ErrPublishFailed)
	}

	opts := []nats.Option{}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: nats connect: %w", berr.ErrPublishFailed, err)
	}

	return nc, nil
}

// NewWithNATS creates a real NATS connection and returns an Adapter and a cleanup.
func NewWithNATS(cfg Config) (*Adapter, *nats.Conn, func(), error) {
	nc, err := Connect(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := func() {
		if !nc.IsClosed() {
			_ = nc.Drain() //nolint:errcheck // best-effort shutdown; cannot return error here
			nc.Close()
		}
	}

	return New(natsClient{nc: nc}), nc, cleanup, nil
}

// Consumer processes one delivered job.
type Consumer func(ctx context.Context, data []byte, headers map[string]string) error

// Subscribe delivers every message on subject to consume, load-balanced
// across the queue group. Failures are reported to onError; redelivery is
// the transport's concern.
func Subscribe(
	ctx context.Context,
	nc *nats.Conn,
	subject, queue string,
	consume Consumer,
	onError func(subject string, err error),
) (*nats.Subscription, error) {
	sub, err := nc.QueueSubscribe(subject, queue, func(m *nats.Msg) {
		headers := make(map[string]string, len(m.Header))
		for k := range m.Header {
			headers[k] = m.Header.Get(k)
		}

		if err := consume(ctx, m.Data, headers); err != nil && onError != nil {
			onError(m.Subject, err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	return sub, nil
}
