package registry

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
)

// Registry holds the message type to binding table.
//
// It is populated by a single writer through Register and then frozen.
// After Freeze, lookups read an immutable snapshot without locking and any
// further Register call fails with ErrRegistryFrozen.
type Registry struct {
	mu    sync.Mutex
	table *table
	snap  atomic.Pointer[table]

	logger *slog.Logger
}

type table struct {
	byType map[cbus.MessageType][]*Binding
	byName map[string]cbus.MessageType
	order  []*Binding
}

func newTable() *table {
	return &table{
		byType: make(map[cbus.MessageType][]*Binding),
		byName: make(map[string]cbus.MessageType),
	}
}

func (t *table) insert(b *Binding) {
	t.byType[b.message] = append(t.byType[b.message], b)
	t.byName[b.message.Name()] = b.message
	t.order = append(t.order, b)
}

// New constructs an empty Registry. logger may be nil.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Registry{table: newTable(), logger: logger}
}

// Register discovers every binding in src and adds them to the table.
//
// The call is atomic: on any error the table is left untouched. It fails with
// ErrInvalidSource when src is nil or yields no bindings, with a
// *DuplicateHandlerError when a command or query type would get a second
// binding, and with a *UnboundCommandError when an owner declares a
// capability none of its methods handle. Routing names must be unique: a
// message type whose Name is already held by a different Go type is
// rejected with ErrInvalidSource.
func (r *Registry) Register(src Source) error {
	if src == nil {
		return fmt.Errorf("register: nil source: %w", berr.ErrInvalidSource)
	}

	var c collector
	if err := src.collect(&c); err != nil {
		return fmt.Errorf("register %s: %w", src.Name(), err)
	}

	if len(c.bindings) == 0 {
		return fmt.Errorf("register %s: no handlers found: %w", src.Name(), berr.ErrInvalidSource)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snap.Load() != nil {
		return fmt.Errorf("register %s: %w", src.Name(), berr.ErrRegistryFrozen)
	}

	names := make(map[string]cbus.MessageType, len(c.bindings))

	for _, b := range c.bindings {
		name := b.message.Name()

		held, ok := names[name]
		if !ok {
			held, ok = r.table.byName[name]
		}

		if ok && held != b.message {
			return fmt.Errorf("register %s: routing name %q of %s already used by %s: %w",
				src.Name(), name, b.message, held, berr.ErrInvalidSource)
		}

		names[name] = b.message
	}

	staged := make(map[cbus.MessageType]*Binding, len(c.bindings))

	for _, b := range c.bindings {
		if !b.message.Exclusive() {
			continue
		}

		existing, ok := staged[b.message]
		if !ok && len(r.table.byType[b.message]) > 0 {
			existing, ok = r.table.byType[b.message][0], true
		}

		if ok {
			return fmt.Errorf("register %s: %w", src.Name(), &berr.DuplicateHandlerError{
				Message:  b.message.String(),
				Existing: existing.String(),
				New:      b.String(),
			})
		}

		staged[b.message] = b
	}

	for _, b := range c.bindings {
		r.table.insert(b)
		r.logger.Debug("handler bound", "message", b.message.String(), "kind", b.message.Kind().String(), "handler", b.String())
	}

	r.logger.Info("handler source registered", "source", src.Name(), "bindings", len(c.bindings))

	return nil
}

// Freeze publishes the table as an immutable snapshot. It is idempotent.
func (r *Registry) Freeze() *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snap.Load() != nil {
		return r
	}

	frozen := newTable()
	for _, b := range r.table.order {
		frozen.insert(b)
	}

	r.snap.Store(frozen)
	r.logger.Info("registry frozen", "bindings", len(frozen.order))

	return r
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool { return r.snap.Load() != nil }

// Find returns the binding for mt. For domain events with several observers
// it returns the first one registered.
func (r *Registry) Find(mt cbus.MessageType) (*Binding, bool) {
	bs := r.lookup(mt)
	if len(bs) == 0 {
		return nil, false
	}

	return bs[0], true
}

// FindAll returns every binding for mt in registration order.
func (r *Registry) FindAll(mt cbus.MessageType) []*Binding {
	return append([]*Binding(nil), r.lookup(mt)...)
}

func (r *Registry) lookup(mt cbus.MessageType) []*Binding {
	if t := r.snap.Load(); t != nil {
		return t.byType[mt]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*Binding(nil), r.table.byType[mt]...)
}

// Bindings yields every binding in registration order.
func (r *Registry) Bindings() iter.Seq2[cbus.MessageType, *Binding] {
	return func(yield func(cbus.MessageType, *Binding) bool) {
		order := r.snapshotOrder()
		for _, b := range order {
			if !yield(b.message, b) {
				return
			}
		}
	}
}

// Len returns the number of bindings.
func (r *Registry) Len() int { return len(r.snapshotOrder()) }

// Lookup resolves a message type by its routing name (see MessageType.Name).
// Workers use it to decode queued payloads.
func (r *Registry) Lookup(name string) (cbus.MessageType, bool) {
	if t := r.snap.Load(); t != nil {
		mt, ok := t.byName[name]
		return mt, ok
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	mt, ok := r.table.byName[name]

	return mt, ok
}

func (r *Registry) snapshotOrder() []*Binding {
	if t := r.snap.Load(); t != nil {
		return t.order
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*Binding(nil), r.table.order...)
}
