// Package worker runs queued jobs: commands enqueued by Dispatch and
// listeners enqueued by the Subscribers hook. It consumes either typed jobs
// from the in-memory adapter or encoded bodies from a broker.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/next-trace/scg-cmdr/adapters/inmemory"
	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
	"github.com/next-trace/scg-cmdr/internal/wire"
	"github.com/next-trace/scg-cmdr/servicebus"
)

// Worker executes jobs against a Bus. It is safe for concurrent use.
type Worker struct {
	bus     *servicebus.Bus
	subs    *servicebus.Subscribers
	extract cbus.HeaderExtractor
	logger  *slog.Logger
	tries   int
	onFail  func(ctx context.Context, name string, err error)
	types   *lru.Cache[string, cbus.MessageType]
}

const typeCacheSize = 512

// Option configures a Worker.
type Option func(*Worker)

// WithSubscribers enables listener jobs.
func WithSubscribers(s *servicebus.Subscribers) Option {
	return func(w *Worker) { w.subs = s }
}

// WithExtractor restores trace context from job headers.
func WithExtractor(x cbus.HeaderExtractor) Option {
	return func(w *Worker) {
		if x != nil {
			w.extract = x
		}
	}
}

// WithLogger sets the logger for retries and failures. nil keeps the default.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithFailureHook is called once per job that failed every attempt.
func WithFailureHook(fn func(ctx context.Context, name string, err error)) Option {
	return func(w *Worker) { w.onFail = fn }
}

// WithDefaultTries sets attempts for jobs that do not carry their own.
func WithDefaultTries(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.tries = n
		}
	}
}

// New returns a worker that runs jobs through b. Without options a job gets
// one try and logs are discarded.
func New(b *servicebus.Bus, opts ...Option) *Worker {
	w := &Worker{
		bus:     b,
		extract: cbus.NopHeaderPropagator{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		tries:   1,
	}

	w.types, _ = lru.New[string, cbus.MessageType](typeCacheSize)

	for _, o := range opts {
		o(w)
	}

	return w
}

// RunCommand executes cmd, retrying up to tries attempts. Results are discarded.
func (w *Worker) RunCommand(ctx context.Context, cmd cbus.Command, tries int) error {
	return w.attempt(ctx, "command", cbus.TypeOfMessage(cmd).String(), tries, func() error {
		items, err := w.bus.Execute(ctx, cmd)
		if err == nil {
			w.logger.DebugContext(ctx, "job done", "command", cbus.TypeOfMessage(cmd).Name(), "items", len(items))
		}

		return err
	})
}

// RunListener delivers e to the named listener, retrying up to tries attempts.
func (w *Worker) RunListener(ctx context.Context, name string, e cbus.DomainEvent, tries int) error {
	if w.subs == nil {
		return fmt.Errorf("run listener %s: %w", name, berr.ErrAsyncNotConfigured)
	}

	return w.attempt(ctx, "listener", name, tries, func() error {
		return w.subs.Run(ctx, name, e)
	})
}

func (w *Worker) attempt(ctx context.Context, kind, name string, tries int, fn func() error) error {
	if tries <= 0 {
		tries = w.tries
	}

	var err error

	for i := 1; i <= tries; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}

		if err = fn(); err == nil {
			return nil
		}

		if errors.Is(err, berr.ErrHandlerNotFound) {
			break
		}

		w.logger.WarnContext(ctx, "job attempt failed", kind, name, "attempt", i, "tries", tries, "err", err)
	}

	w.logger.ErrorContext(ctx, "job failed", kind, name, "err", err)

	if w.onFail != nil {
		w.onFail(ctx, name, err)
	}

	return err
}

// RunJob executes one typed job from the in-memory adapter.
func (w *Worker) RunJob(ctx context.Context, j inmemory.Job) error {
	if j.IsListener() {
		return w.RunListener(ctx, j.Listener, j.Event, j.Options.Tries)
	}

	return w.RunCommand(ctx, j.Command, j.Options.Tries)
}

// Flush drains ad and runs its jobs until no new jobs appear, so jobs
// enqueued by running jobs are processed too. All job errors are joined.
func (w *Worker) Flush(ctx context.Context, ad *inmemory.Adapter) error {
	var errs []error

	for jobs := ad.Drain(); len(jobs) > 0; jobs = ad.Drain() {
		for _, j := range jobs {
			if err := w.RunJob(ctx, j); err != nil {
				if ctx.Err() != nil {
					return errors.Join(append(errs, err)...)
				}

				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// Handle decodes one broker job and runs it. The body is the JSON message;
// headers name its type and, for listener jobs, the listener.
func (w *Worker) Handle(ctx context.Context, data []byte, headers map[string]string) error {
	ctx = w.extract.Extract(ctx, headers)

	tries, _ := strconv.Atoi(headers[wire.HeaderTries])

	name := headers[wire.HeaderMessageType]
	if name == "" {
		return fmt.Errorf("decode job: missing %s header: %w", wire.HeaderMessageType, berr.ErrSerializationFailed)
	}

	mt, ok := w.resolve(name)
	if !ok {
		return fmt.Errorf("decode job %s: %w", name, berr.ErrHandlerNotFound)
	}

	m, err := decode(mt, data)
	if err != nil {
		return err
	}

	if listener := headers[wire.HeaderListener]; listener != "" {
		e, ok := m.(cbus.DomainEvent)
		if !ok {
			return fmt.Errorf("decode job %s: not a domain event: %w", name, berr.ErrHandlerTypeMismatch)
		}

		return w.RunListener(ctx, listener, e, tries)
	}

	cmd, ok := m.(cbus.Command)
	if !ok {
		return fmt.Errorf("decode job %s: not a command: %w", name, berr.ErrHandlerTypeMismatch)
	}

	return w.RunCommand(ctx, cmd, tries)
}

// resolve maps a wire type name to a message type known to the registry or
// to subscribers. A name the two resolve to different types is refused.
// Hits are cached.
func (w *Worker) resolve(name string) (cbus.MessageType, bool) {
	if mt, ok := w.types.Get(name); ok {
		return mt, true
	}

	mt, ok := w.bus.Registry().Lookup(name)
	if w.subs != nil {
		if sub, found := w.subs.Lookup(name); found {
			if ok && sub != mt {
				w.logger.Warn("ambiguous job type", "name", name, "registry", mt.String(), "listener", sub.String())
				return cbus.MessageType{}, false
			}

			mt, ok = sub, true
		}
	}

	if ok {
		w.types.Add(name, mt)
	}

	return mt, ok
}

// decode allocates a zero value of the registered type and unmarshals into it.
// Pointer message types receive the pointer; value types receive the value.
func decode(mt cbus.MessageType, data []byte) (cbus.Message, error) {
	rt := mt.Type()

	var ptr reflect.Value
	if rt.Kind() == reflect.Pointer {
		ptr = reflect.New(rt.Elem())
	} else {
		ptr = reflect.New(rt)
	}

	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", mt.Name(), errors.Join(berr.ErrSerializationFailed, err))
	}

	v := ptr
	if rt.Kind() != reflect.Pointer {
		v = ptr.Elem()
	}

	m, ok := v.Interface().(cbus.Message)
	if !ok {
		return nil, fmt.Errorf("decode job %s: %w", mt.Name(), berr.ErrHandlerTypeMismatch)
	}

	return m, nil
}
