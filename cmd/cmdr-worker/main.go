// Command cmdr-worker registers the configured ledger handler sources,
// connects the configured transport and executes queued jobs until stopped.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/next-trace/scg-cmdr/adapters/inmemory"
	"github.com/next-trace/scg-cmdr/adapters/kafka"
	"github.com/next-trace/scg-cmdr/adapters/nats"
	"github.com/next-trace/scg-cmdr/adapters/rabbitmq"
	"github.com/next-trace/scg-cmdr/config"
	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	"github.com/next-trace/scg-cmdr/examples/ledger"
	"github.com/next-trace/scg-cmdr/internal/wire"
	"github.com/next-trace/scg-cmdr/metrics"
	"github.com/next-trace/scg-cmdr/registry"
	"github.com/next-trace/scg-cmdr/servicebus"
	"github.com/next-trace/scg-cmdr/tracing"
	"github.com/next-trace/scg-cmdr/worker"
)

const serviceName = "cmdr-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	shutdown, err := tracing.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	store, err := ledger.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	a, err := newApp(cfg, store, logger)
	if err != nil {
		return err
	}
	defer a.tr.close()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, a.prom.Handler(), logger) })
	}

	g.Go(func() error { return a.tr.consume(ctx, a) })

	logger.Info("worker started", "transport", cfg.Transport, "bindings", a.reg.Len())

	return g.Wait()
}

type app struct {
	reg    *registry.Registry
	subs   *servicebus.Subscribers
	bus    *servicebus.Bus
	worker *worker.Worker
	prom   *metrics.Prom
	tr     *transport
	queues []string
}

func newApp(cfg config.Config, store *ledger.Store, logger *slog.Logger) (*app, error) {
	reg, err := buildRegistry(store, cfg.HandlerSources, logger)
	if err != nil {
		return nil, err
	}

	prop := tracing.NewPropagator(nil)

	tr, err := openTransport(cfg, prop, logger)
	if err != nil {
		return nil, err
	}

	prom := metrics.NewProm()
	subs := servicebus.NewSubscribers(tr.adapter)

	bus := servicebus.New(reg,
		servicebus.WithAdapter(tr.adapter),
		servicebus.WithEventHook(subs),
		servicebus.WithMaxDepth(cfg.MaxDepth),
		servicebus.WithLogger(logger),
		servicebus.WithMiddleware(
			tracing.Middleware(nil),
			prom.Middleware(),
			servicebus.LoggingMiddleware(logger),
		),
	)

	w := worker.New(bus,
		worker.WithSubscribers(subs),
		worker.WithExtractor(prop),
		worker.WithLogger(logger),
		worker.WithFailureHook(func(ctx context.Context, name string, err error) {
			prom.JobFailed(cfg.Transport)
		}),
	)

	return &app{reg: reg, subs: subs, bus: bus, worker: w, prom: prom, tr: tr, queues: cfg.Queues}, nil
}

// jobRoutes lists what a broker worker consumes: the configured queues plus
// every route a registered queueable command or a queued listener is
// published to.
func (a *app) jobRoutes(r wire.Routes) []string {
	seen := make(map[string]bool)

	var out []string

	add := func(route string) {
		if !seen[route] {
			seen[route] = true
			out = append(out, route)
		}
	}

	for _, q := range a.queues {
		add(r.Commands + q)
	}

	for mt := range a.reg.Bindings() {
		cmd, ok := mt.Zero().(cbus.Command)
		if !ok {
			continue
		}

		if q, ok := cmd.(cbus.Queueable); ok {
			add(r.Command(cmd, cbus.QueueOptionsFor(q)))
		}
	}

	for _, l := range a.subs.Queued() {
		if e, ok := l.Event.Zero().(cbus.DomainEvent); ok {
			add(r.Listener(e, l.Name, l.Options))
		}
	}

	return out
}

// buildRegistry registers the named sources in order; no names means every
// source the catalog knows, sorted.
func buildRegistry(store *ledger.Store, names []string, logger *slog.Logger) (*registry.Registry, error) {
	cat, err := ledger.Catalog(store)
	if err != nil {
		return nil, err
	}

	if len(names) == 0 {
		names = cat.Names()
	}

	reg := registry.New(logger)
	if err := cat.RegisterAll(reg, names); err != nil {
		return nil, fmt.Errorf("register handler sources: %w", err)
	}

	return reg.Freeze(), nil
}

type transport struct {
	adapter cbus.Adapter
	consume func(ctx context.Context, a *app) error
	close   func()
}

func openTransport(cfg config.Config, prop tracing.Propagator, logger *slog.Logger) (*transport, error) {
	switch cfg.Transport {
	case config.TransportNATS:
		ad, nc, cleanup, err := nats.NewWithNATS(nats.Config{URL: cfg.NATSURL, Name: serviceName, MaxReconnects: -1})
		if err != nil {
			return nil, err
		}

		ad.Propagator = prop

		return &transport{adapter: ad, close: cleanup, consume: func(ctx context.Context, a *app) error {
			onError := func(subject string, err error) {
				logger.Error("nats job failed", "subject", subject, "err", err)
			}

			for _, subject := range []string{"cmd.>", "listeners.>"} {
				if _, err := nats.Subscribe(ctx, nc, subject, cfg.Group, a.worker.Handle, onError); err != nil {
					return err
				}
			}

			<-ctx.Done()

			return ctx.Err()
		}}, nil

	case config.TransportRabbitMQ:
		rcfg := rabbitmq.Config{URL: cfg.AMQPURL, ConnTimeout: 10 * time.Second, Logger: logger}

		ad, cleanup, err := rabbitmq.NewWithAMQPConn(rcfg)
		if err != nil {
			return nil, err
		}

		ad.Propagator = prop

		return &transport{adapter: ad, close: cleanup, consume: func(ctx context.Context, a *app) error {
			return rabbitmq.Consume(ctx, rcfg, a.jobRoutes(rabbitmq.Routes), a.worker.Handle)
		}}, nil

	case config.TransportKafka:
		ad, cleanup, err := kafka.NewWithKgo(kafka.Config{Brokers: cfg.KafkaBrokers, ClientID: serviceName})
		if err != nil {
			return nil, err
		}

		ad.Propagator = prop

		return &transport{adapter: ad, close: cleanup, consume: func(ctx context.Context, a *app) error {
			kcfg := kafka.Config{
				Brokers:  cfg.KafkaBrokers,
				ClientID: serviceName,
				Group:    cfg.Group,
				Topics:   a.jobRoutes(kafka.Routes),
			}

			return kafka.Consume(ctx, kcfg, a.worker.Handle, logger)
		}}, nil

	default:
		ad := inmemory.New()

		return &transport{adapter: ad, close: func() {}, consume: func(ctx context.Context, a *app) error {
			return flushLoop(ctx, a.worker, ad, logger)
		}}, nil
	}
}

// flushLoop drains the in-process queue once a second.
func flushLoop(ctx context.Context, w *worker.Worker, ad *inmemory.Adapter, logger *slog.Logger) error {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := w.Flush(ctx, ad); err != nil {
				logger.Error("flush jobs", "err", err)
			}
		}
	}
}

func serveMetrics(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(sctx)
	}()

	logger.Info("serving metrics", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	return nil
}
