package servicebus_test

import (
	"context"
	"sync"
	"time"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
)

type deposit struct {
	cbus.IsCommand
	Amount int
}

type withdraw struct {
	cbus.IsCommand
	Amount int
}

type logAudit struct {
	cbus.IsCommand
	Note string
}

type deposited struct {
	cbus.IsDomainEvent
	Amount int
}

type withdrawn struct {
	cbus.IsDomainEvent
	Amount int
}

type auditLogged struct {
	cbus.IsDomainEvent
	Note string
}

type balance struct{ cbus.IsQuery }

type refund struct {
	cbus.IsCommand
	Amount int
}

type loop struct {
	cbus.IsCommand
	N int
}

type queuedCmd struct {
	cbus.IsCommand
	ID string
}

func (queuedCmd) QueueName() string    { return "commands" }
func (queuedCmd) Delay() time.Duration { return time.Second }
func (queuedCmd) Tries() int           { return 3 }

// journal records the order of side effects across handlers and hooks.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.entries = append(j.entries, s)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	return append([]string(nil), j.entries...)
}

// recordingHook is a publish hook that journals every event.
type recordingHook struct {
	j      *journal
	events []cbus.DomainEvent
	err    error
}

func (h *recordingHook) Publish(ctx context.Context, e cbus.DomainEvent) error {
	h.events = append(h.events, e)
	h.j.add("publish " + cbus.TypeOfMessage(e).Name())

	return h.err
}

type fakeEnq struct {
	cmds         []cbus.Command
	cmdOpts      []cbus.QueueOptions
	listeners    []string
	listenerOpts []cbus.QueueOptions
}

func (f *fakeEnq) EnqueueCommand(ctx context.Context, cmd cbus.Command, opts cbus.QueueOptions) error {
	f.cmds = append(f.cmds, cmd)
	f.cmdOpts = append(f.cmdOpts, opts)

	return nil
}

func (f *fakeEnq) EnqueueListener(
	ctx context.Context,
	evt cbus.DomainEvent,
	handler string,
	opts cbus.QueueOptions,
) error {
	f.listeners = append(f.listeners, handler)
	f.listenerOpts = append(f.listenerOpts, opts)

	return nil
}

type exported struct{ T string }

func (o exported) Topic() string { return o.T }

type fakePub struct {
	events []cbus.IntegrationEvent
	opts   []cbus.PublishOptions
}

func (f *fakePub) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	f.events = append(f.events, e)
	f.opts = append(f.opts, opts)

	return nil
}
