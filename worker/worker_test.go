package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/next-trace/scg-cmdr/adapters/inmemory"
	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
	"github.com/next-trace/scg-cmdr/internal/wire"
	"github.com/next-trace/scg-cmdr/registry"
	"github.com/next-trace/scg-cmdr/servicebus"
	"github.com/next-trace/scg-cmdr/worker"
)

type charge struct {
	cbus.IsCommand
	Account string
	Amount  int
}

func (charge) QueueName() string    { return "billing" }
func (charge) Delay() time.Duration { return 0 }
func (charge) Tries() int           { return 3 }

type charged struct {
	cbus.IsDomainEvent
	Account string
	Amount  int
}

type receipt struct{ seen *[]string }

func (r receipt) Handle(ctx context.Context, e charged) error {
	*r.seen = append(*r.seen, "receipt "+e.Account)
	return nil
}

func (receipt) QueueName() string    { return "mail" }
func (receipt) Delay() time.Duration { return 0 }

type harness struct {
	mu    sync.Mutex
	seen  []string
	fails int

	ad   *inmemory.Adapter
	bus  *servicebus.Bus
	subs *servicebus.Subscribers
}

func newHarness(t *testing.T, fails int) *harness {
	t.Helper()

	h := &harness{fails: fails, ad: inmemory.New()}

	r := registry.New(nil)
	err := r.Register(registry.Func("charge", func(ctx context.Context, c charge) (cbus.Result, error) {
		h.mu.Lock()
		defer h.mu.Unlock()

		if h.fails > 0 {
			h.fails--
			return cbus.None(), errors.New("card declined")
		}

		h.seen = append(h.seen, "charge "+c.Account)

		return cbus.Value(charged{Account: c.Account, Amount: c.Amount}), nil
	}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	h.subs = servicebus.NewSubscribers(h.ad)
	servicebus.Subscribe[charged](h.subs, receipt{seen: &h.seen})

	h.bus = servicebus.New(r, servicebus.WithAdapter(h.ad), servicebus.WithEventHook(h.subs))

	return h
}

func TestWorker_FlushRunsCommandsAndListeners(t *testing.T) {
	h := newHarness(t, 0)
	w := worker.New(h.bus, worker.WithSubscribers(h.subs))

	if err := h.bus.Dispatch(t.Context(), charge{Account: "a1", Amount: 5}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(h.seen) != 0 {
		t.Fatalf("queueable command ran synchronously: %v", h.seen)
	}

	if err := w.Flush(t.Context(), h.ad); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if len(h.seen) != 2 || h.seen[0] != "charge a1" || h.seen[1] != "receipt a1" {
		t.Fatalf("seen=%v", h.seen)
	}

	if len(h.ad.Jobs()) != 0 {
		t.Fatalf("jobs left: %+v", h.ad.Jobs())
	}
}

func TestWorker_RetriesUpToTries(t *testing.T) {
	h := newHarness(t, 2)
	w := worker.New(h.bus, worker.WithSubscribers(h.subs))

	if err := h.bus.Dispatch(t.Context(), charge{Account: "a2"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if err := w.Flush(t.Context(), h.ad); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if len(h.seen) != 2 {
		t.Fatalf("seen=%v", h.seen)
	}

	h = newHarness(t, 5)
	w = worker.New(h.bus)

	err := w.RunCommand(t.Context(), charge{Account: "a3"}, 2)
	if err == nil || err.Error() != "card declined" {
		t.Fatalf("want last handler error, got %v", err)
	}

	if h.fails != 3 {
		t.Fatalf("want 2 attempts, fails left %d", h.fails)
	}
}

func TestWorker_HandleDecodesBrokerJobs(t *testing.T) {
	h := newHarness(t, 0)
	w := worker.New(h.bus, worker.WithSubscribers(h.subs))

	c := charge{Account: "b1", Amount: 9}

	body, err := wire.Encode(c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if err := w.Handle(t.Context(), body, wire.QueueHeaders(c, cbus.QueueOptionsFor(c))); err != nil {
		t.Fatalf("handle command: %v", err)
	}

	if len(h.seen) != 1 || h.seen[0] != "charge b1" {
		t.Fatalf("seen=%v", h.seen)
	}

	// charged is only known to the subscribers, not the registry.
	e := charged{Account: "b2"}
	body, _ = wire.Encode(e)

	if err := w.Handle(t.Context(), body, wire.ListenerHeaders(e, "worker_test.receipt", cbus.QueueOptions{})); err != nil {
		t.Fatalf("handle listener: %v", err)
	}

	if h.seen[len(h.seen)-1] != "receipt b2" {
		t.Fatalf("seen=%v", h.seen)
	}
}

func TestWorker_HandleErrors(t *testing.T) {
	h := newHarness(t, 0)
	w := worker.New(h.bus)

	if err := w.Handle(t.Context(), []byte(`{}`), nil); !errors.Is(err, berr.ErrSerializationFailed) {
		t.Fatalf("missing type: %v", err)
	}

	unknown := map[string]string{wire.HeaderMessageType: "nope"}
	if err := w.Handle(t.Context(), []byte(`{}`), unknown); !errors.Is(err, berr.ErrHandlerNotFound) {
		t.Fatalf("unknown type: %v", err)
	}

	bad := map[string]string{wire.HeaderMessageType: "charge"}
	if err := w.Handle(t.Context(), []byte(`{"Amount":"x"}`), bad); !errors.Is(err, berr.ErrSerializationFailed) {
		t.Fatalf("bad body: %v", err)
	}

	if err := w.RunListener(t.Context(), "x", charged{}, 1); !errors.Is(err, berr.ErrAsyncNotConfigured) {
		t.Fatalf("no subscribers: %v", err)
	}
}

type ctxKey struct{}

type stampExtractor struct{}

func (stampExtractor) Extract(ctx context.Context, headers map[string]string) context.Context {
	return context.WithValue(ctx, ctxKey{}, headers["traceparent"])
}

func TestWorker_HandleExtractsContext(t *testing.T) {
	var got any

	r := registry.New(nil)
	_ = r.Register(registry.Func("charge", func(ctx context.Context, c charge) (cbus.Result, error) {
		got = ctx.Value(ctxKey{})
		return cbus.None(), nil
	}))

	w := worker.New(servicebus.New(r), worker.WithExtractor(stampExtractor{}))

	headers := map[string]string{wire.HeaderMessageType: "charge", "traceparent": "00-xyz"}
	if err := w.Handle(t.Context(), []byte(`{"Account":"c"}`), headers); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if got != "00-xyz" {
		t.Fatalf("ctx value=%v", got)
	}
}

func TestWorker_FailureHook(t *testing.T) {
	h := newHarness(t, 10)

	var failed []string

	w := worker.New(h.bus, worker.WithDefaultTries(2), worker.WithFailureHook(func(ctx context.Context, name string, err error) {
		failed = append(failed, name)
	}))

	if err := w.RunCommand(t.Context(), charge{}, 0); err == nil {
		t.Fatal("want error")
	}

	if h.fails != 8 || len(failed) != 1 {
		t.Fatalf("fails left=%d failed=%v", h.fails, failed)
	}
}

func TestWorker_HandleRefusesAmbiguousType(t *testing.T) {
	h := newHarness(t, 0)

	// An event type that shares the registered command's short name.
	type charge struct{ cbus.IsDomainEvent }

	servicebus.SubscribeFunc(h.subs, "shadow", func(ctx context.Context, e charge) error { return nil })

	w := worker.New(h.bus, worker.WithSubscribers(h.subs))

	headers := map[string]string{wire.HeaderMessageType: "charge"}
	if err := w.Handle(t.Context(), []byte(`{"Account":"d"}`), headers); !errors.Is(err, berr.ErrHandlerNotFound) {
		t.Fatalf("want ErrHandlerNotFound, got %v", err)
	}

	if len(h.seen) != 0 {
		t.Fatalf("seen=%v", h.seen)
	}
}
