package servicebus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
	"github.com/next-trace/scg-cmdr/registry"
	"github.com/next-trace/scg-cmdr/servicebus"
)

type mailer struct{ sent *[]int }

func (m mailer) Handle(ctx context.Context, e deposited) error {
	*m.sent = append(*m.sent, e.Amount)
	return nil
}

type queuedMailer struct{ mailer }

func (queuedMailer) QueueName() string    { return "mail" }
func (queuedMailer) Delay() time.Duration { return 2 * time.Second }

func Test_Subscribers_FanOutFromExecute(t *testing.T) {
	j := &journal{}
	r := registry.New(nil)
	mustRegister(t, r, ledgerSources(j))

	var sent []int

	subs := servicebus.NewSubscribers(nil)
	servicebus.Subscribe[deposited](subs, mailer{sent: &sent})
	servicebus.SubscribeFunc(subs, "journal", func(ctx context.Context, e deposited) error {
		j.add("observed")
		return nil
	})

	b := servicebus.New(r, servicebus.WithEventHook(subs))

	if _, err := b.Execute(t.Context(), deposit{Amount: 7}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(sent) != 1 || sent[0] != 7 {
		t.Fatalf("sent=%v", sent)
	}

	if got := j.list(); len(got) != 2 || got[1] != "observed" {
		t.Fatalf("journal=%v", got)
	}

	if err := subs.Publish(t.Context(), withdrawn{}); err != nil {
		t.Fatalf("publish without listeners: %v", err)
	}
}

func Test_Subscribers_EnqueueQueueableListeners(t *testing.T) {
	var sent []int

	enq := &fakeEnq{}
	subs := servicebus.NewSubscribers(enq)
	servicebus.Subscribe[deposited](subs, queuedMailer{mailer{sent: &sent}})
	servicebus.Subscribe[deposited](subs, mailer{sent: &sent})

	if err := subs.Publish(t.Context(), deposited{Amount: 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(enq.listeners) != 1 || enq.listeners[0] != "servicebus_test.queuedMailer" {
		t.Fatalf("listeners=%v", enq.listeners)
	}

	if enq.listenerOpts[0].Queue != "mail" || enq.listenerOpts[0].DelaySeconds != 2 {
		t.Fatalf("opts=%+v", enq.listenerOpts[0])
	}

	if len(sent) != 1 {
		t.Fatalf("sync listener should still run: %v", sent)
	}
}

func Test_Subscribers_JoinErrors(t *testing.T) {
	e1, e2 := errors.New("one"), errors.New("two")

	subs := servicebus.NewSubscribers(nil)
	servicebus.SubscribeFunc(subs, "a", func(ctx context.Context, e deposited) error { return e1 })
	servicebus.SubscribeFunc(subs, "b", func(ctx context.Context, e deposited) error { return e2 })

	err := subs.Publish(t.Context(), deposited{})
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("want joined errors, got %v", err)
	}
}

func Test_Subscribers_HookErrorAbortsExecute(t *testing.T) {
	j := &journal{}
	r := registry.New(nil)
	mustRegister(t, r, ledgerSources(j))

	subs := servicebus.NewSubscribers(nil)
	servicebus.SubscribeFunc(subs, "fail", func(ctx context.Context, e auditLogged) error {
		return berr.ErrPublishFailed
	})

	b := servicebus.New(r, servicebus.WithEventHook(subs))

	_, err := b.Execute(t.Context(), withdraw{Amount: 1})
	if !errors.Is(err, berr.ErrPublishFailed) {
		t.Fatalf("want ErrPublishFailed, got %v", err)
	}

	var _ cbus.EventHook = subs
}

func Test_Subscribers_RunNamedListener(t *testing.T) {
	var sent []int

	subs := servicebus.NewSubscribers(&fakeEnq{})
	servicebus.Subscribe[deposited](subs, queuedMailer{mailer{sent: &sent}})

	names := subs.Listeners(cbus.TypeOf[deposited]())
	if len(names) != 1 || names[0] != "servicebus_test.queuedMailer" {
		t.Fatalf("names=%v", names)
	}

	if err := subs.Run(t.Context(), names[0], deposited{Amount: 4}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sent) != 1 || sent[0] != 4 {
		t.Fatalf("sent=%v", sent)
	}

	if err := subs.Run(t.Context(), "missing", deposited{}); !errors.Is(err, berr.ErrHandlerNotFound) {
		t.Fatalf("want ErrHandlerNotFound, got %v", err)
	}
}

func Test_Subscribers_LookupByName(t *testing.T) {
	subs := servicebus.NewSubscribers(nil)
	servicebus.SubscribeFunc(subs, "first", func(ctx context.Context, e deposited) error { return nil })
	servicebus.SubscribeFunc(subs, "second", func(ctx context.Context, e deposited) error { return nil })

	mt, ok := subs.Lookup("deposited")
	if !ok || mt != cbus.TypeOf[deposited]() {
		t.Fatalf("Lookup(deposited)=%v, %v", mt, ok)
	}

	// A second Go type with the same short name makes the name unroutable.
	type deposited struct{ cbus.IsDomainEvent }

	servicebus.SubscribeFunc(subs, "shadow", func(ctx context.Context, e deposited) error { return nil })

	for range 10 {
		if mt, ok := subs.Lookup("deposited"); ok {
			t.Fatalf("ambiguous name resolved to %v", mt)
		}
	}

	if _, ok := subs.Lookup("withdrawn"); ok {
		t.Fatalf("unsubscribed type resolved")
	}
}
