package kafka

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"

	berr "github.com/next-trace/scg-cmdr/contract/errors"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Config configures the franz-go client behind NewWithKgo and Consume.
type Config struct {
	Brokers     []string
	TLS         *tls.Config
	Acks        kgo.Acks
	Idempotent  bool
	ClientID    string
	Compression kgo.CompressionType
	Group       string // consumer group, Consume only
	Topics      []string
}

func (c Config) opts() []kgo.Opt {
	opts := []kgo.Opt{kgo.SeedBrokers(c.Brokers...)}
	if c.ClientID != "" {
		opts = append(opts, kgo.ClientID(c.ClientID))
	}

	if c.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(c.TLS))
	}

	if c.Compression != (kgo.CompressionType{}) {
		opts = append(opts, kgo.ProducerBatchCompression(c.Compression))
	}

	if !c.Idempotent {
		opts = append(opts, kgo.DisableIdempotentWrite())
		if c.Acks != (kgo.Acks{}) {
			opts = append(opts, kgo.RequiredAcks(c.Acks))
		}
	}

	return opts
}

type kgoWriter struct{ cl *kgo.Client }

func (w kgoWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	return w.cl.ProduceSync(ctx, newRecord(topic, key, value, headers)).FirstErr()
}

func newRecord(topic string, key, value []byte, headers map[string]string) *kgo.Record {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}

	return rec
}

func recordHeaders(rec *kgo.Record) map[string]string {
	h := make(map[string]string, len(rec.Headers))
	for _, rh := range rec.Headers {
		h[rh.Key] = string(rh.Value)
	}

	return h
}

// NewWithKgo builds a franz-go backed Adapter. The cleanup closes the client.
func NewWithKgo(cfg Config) (*Adapter, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("%w: kafka brokers required", berr.ErrPublishFailed)
	}

	cl, err := kgo.NewClient(cfg.opts()...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", berr.ErrPublishFailed, err)
	}

	return New(kgoWriter{cl: cl}), cl.Close, nil
}

// Consumer handles one job body with its headers.
type Consumer func(ctx context.Context, data []byte, headers map[string]string) error

// Consume joins cfg.Group on cfg.Topics and feeds each record to consume until ctx ends.
// Failed records are logged and committed; retries belong to the producer side.
func Consume(ctx context.Context, cfg Config, consume Consumer, logger *slog.Logger) error {
	if len(cfg.Brokers) == 0 || cfg.Group == "" || len(cfg.Topics) == 0 {
		return fmt.Errorf("%w: kafka brokers, group and topics required", berr.ErrEnqueueFailed)
	}

	if logger == nil {
		logger = slog.Default()
	}

	opts := append(cfg.opts(), kgo.ConsumerGroup(cfg.Group), kgo.ConsumeTopics(cfg.Topics...))

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return fmt.Errorf("%w: kafka consumer init: %w", berr.ErrEnqueueFailed, err)
	}
	defer cl.Close()

	for {
		fetches := cl.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			logger.Warn("kafka fetch failed", "topic", topic, "partition", partition, "err", err)
		})

		fetches.EachRecord(func(rec *kgo.Record) {
			if err := consume(ctx, rec.Value, recordHeaders(rec)); err != nil {
				logger.Error("kafka job failed", "topic", rec.Topic, "offset", rec.Offset, "err", err)
			}
		})
	}
}
