package rabbitmq

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	berr "github.com/next-trace/scg-cmdr/contract/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	integrationExchange   = "integration"
	integrationExchangeTy = "topic"
	maxBackoff            = 30 * time.Second
)

// Config holds connection settings for NewWithAMQPConn.
type Config struct {
	URL         string
	ConnTimeout time.Duration
	Logger      *slog.Logger
}

// reconnectingPublisher keeps one channel open, redialing with jittered
// exponential backoff whenever the connection closes.
type reconnectingPublisher struct {
	cfg    Config
	log    *slog.Logger
	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed chan struct{}
	ready  chan struct{} // closed once the first channel is open
	once   sync.Once
}

func newReconnectingPublisher(cfg Config) (*reconnectingPublisher, func()) {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rp := &reconnectingPublisher{
		cfg:    cfg,
		log:    log,
		closed: make(chan struct{}),
		ready:  make(chan struct{}),
	}
	go rp.run()

	return rp, rp.close
}

func (rp *reconnectingPublisher) Publish(ctx context.Context, m PubMsg) error {
	select {
	case <-rp.ready:
	case <-rp.closed:
		return fmt.Errorf("%w: rabbitmq publisher closed", berr.ErrPublishFailed)
	case <-ctx.Done():
		return ctx.Err()
	}

	rp.mu.RLock()
	ch := rp.ch
	rp.mu.RUnlock()

	if ch == nil {
		return fmt.Errorf("%w: rabbitmq not connected", berr.ErrPublishFailed)
	}

	return ch.PublishWithContext(ctx, m.Exchange, m.RoutingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Headers:      toTable(m.Headers),
		ContentType:  "application/json",
		Body:         m.Body,
	})
}

func (rp *reconnectingPublisher) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(rp.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-cmdr"},
		Dial:       amqp.DefaultDial(rp.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if err := ch.ExchangeDeclare(integrationExchange, integrationExchangeTy, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, nil, err
	}

	return conn, ch, nil
}

func (rp *reconnectingPublisher) run() {
	backoff := time.Second
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // non-crypto RNG is acceptable for backoff jitter

	for {
		select {
		case <-rp.closed:
			return
		default:
		}

		conn, ch, err := rp.dial()
		if err != nil {
			sleep := min(backoff+time.Duration(rng.Int63n(int64(backoff/2)))/2, maxBackoff)
			rp.log.Warn("rabbitmq dial failed", "err", err, "retry_in", sleep)

			t := time.NewTimer(sleep)
			select {
			case <-rp.closed:
				t.Stop()
				return
			case <-t.C:
			}

			backoff = min(backoff*2, maxBackoff)

			continue
		}

		backoff = time.Second

		rp.mu.Lock()
		rp.conn, rp.ch = conn, ch
		rp.mu.Unlock()
		rp.once.Do(func() { close(rp.ready) })
		rp.log.Info("rabbitmq connected")

		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-rp.closed:
			return
		case amqpErr := <-notify:
			rp.log.Warn("rabbitmq connection lost", "err", amqpErr)

			rp.mu.Lock()
			rp.conn, rp.ch = nil, nil
			rp.mu.Unlock()

			_ = ch.Close()
			_ = conn.Close()
		}
	}
}

func (rp *reconnectingPublisher) close() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	select {
	case <-rp.closed:
		return
	default:
		close(rp.closed)
	}

	if rp.ch != nil {
		_ = rp.ch.Close()
		rp.ch = nil
	}

	if rp.conn != nil {
		_ = rp.conn.Close()
		rp.conn = nil
	}
}

// NewWithAMQPConn dials RabbitMQ with auto-reconnect, ensures the integration
// exchange exists, and returns the Adapter and a cleanup.
func NewWithAMQPConn(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: rabbitmq url required", berr.ErrPublishFailed)
	}

	pub, cleanup := newReconnectingPublisher(cfg)

	return New(pub), cleanup, nil
}
