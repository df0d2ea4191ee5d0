// Package memory assembles a single-process bus: the registry, the
// Subscribers hook and the in-memory transport, plus a worker that drains it.
package memory

import (
	"context"
	"log/slog"

	"github.com/next-trace/scg-cmdr/adapters/inmemory"
	"github.com/next-trace/scg-cmdr/registry"
	"github.com/next-trace/scg-cmdr/servicebus"
	"github.com/next-trace/scg-cmdr/worker"
)

// Bus is a servicebus.Bus whose queued work stays in process until Flush.
type Bus struct {
	*servicebus.Bus

	Adapter     *inmemory.Adapter
	Subscribers *servicebus.Subscribers
	Worker      *worker.Worker
}

// New freezes reg and builds the bus. Extra options are applied after the
// in-memory wiring, so they may replace the event hook or the adapter.
func New(reg *registry.Registry, logger *slog.Logger, opts ...servicebus.Option) (*Bus, func()) {
	ad := inmemory.New()
	subs := servicebus.NewSubscribers(ad)

	base := []servicebus.Option{
		servicebus.WithAdapter(ad),
		servicebus.WithEventHook(subs),
		servicebus.WithLogger(logger),
	}

	sb := servicebus.New(reg, append(base, opts...)...)
	w := worker.New(sb, worker.WithSubscribers(subs), worker.WithLogger(logger))

	return &Bus{Bus: sb, Adapter: ad, Subscribers: subs, Worker: w}, func() { _ = sb.Close() }
}

// Flush runs every queued job, including jobs queued while flushing.
func (b *Bus) Flush(ctx context.Context) error { return b.Worker.Flush(ctx, b.Adapter) }
