// Package inmemory is a process-local transport. It records queued jobs and
// published integration events so tests and single-process programs can
// drain and run them later.
package inmemory

import (
	"context"
	"slices"
	"sync"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
)

// Job is one queued unit of work: either a command or a named listener for an event.
type Job struct {
	Command  cbus.Command
	Event    cbus.DomainEvent
	Listener string
	Options  cbus.QueueOptions
}

// IsListener reports whether the job targets an event listener.
func (j Job) IsListener() bool { return j.Event != nil }

// Published is one recorded integration event.
type Published struct {
	Event   cbus.IntegrationEvent
	Options cbus.PublishOptions
}

// Adapter is a thread-safe in-memory cbus.Adapter.
type Adapter struct {
	mu     sync.Mutex
	jobs   []Job
	events []Published
}

var _ cbus.Adapter = (*Adapter)(nil)

func New() *Adapter { return &Adapter{} }

func (a *Adapter) EnqueueCommand(ctx context.Context, cmd cbus.Command, opts cbus.QueueOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	a.jobs = append(a.jobs, Job{Command: cmd, Options: opts})
	a.mu.Unlock()

	return nil
}

func (a *Adapter) EnqueueListener(
	ctx context.Context,
	e cbus.DomainEvent,
	handler string,
	opts cbus.QueueOptions,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	a.jobs = append(a.jobs, Job{Event: e, Listener: handler, Options: opts})
	a.mu.Unlock()

	return nil
}

func (a *Adapter) PublishIntegration(ctx context.Context, e cbus.IntegrationEvent, opts cbus.PublishOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	a.events = append(a.events, Published{Event: e, Options: opts})
	a.mu.Unlock()

	return nil
}

// Jobs returns a snapshot of pending jobs.
func (a *Adapter) Jobs() []Job {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.jobs)
}

// Drain removes and returns every pending job in enqueue order.
func (a *Adapter) Drain() []Job {
	a.mu.Lock()
	defer a.mu.Unlock()

	jobs := a.jobs
	a.jobs = nil

	return jobs
}

// Events returns a snapshot of published integration events.
func (a *Adapter) Events() []Published {
	a.mu.Lock()
	defer a.mu.Unlock()

	return slices.Clone(a.events)
}
