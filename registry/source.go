package registry

import (
	"context"
	"fmt"
	"go/token"
	"reflect"
	"runtime"
	"slices"
	"strings"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
)

// Source is something the Registry can discover bindings from.
// Sources are built with Func, Untyped, Owner and Module.
type Source interface {
	Name() string
	collect(c *collector) error
}

type collector struct {
	bindings []*Binding
}

func (c *collector) add(b *Binding) { c.bindings = append(c.bindings, b) }

// Func binds fn to the message type of its own parameter.
// An empty name is derived from the function symbol.
func Func[M cbus.Message](name string, fn cbus.HandlerFunc[M]) Source {
	if name == "" && fn != nil {
		name = funcName(fn)
	}

	return funcSource[M]{name: name, fn: fn}
}

type funcSource[M cbus.Message] struct {
	name string
	fn   cbus.HandlerFunc[M]
}

func (s funcSource[M]) Name() string { return s.name }

func (s funcSource[M]) collect(c *collector) error {
	if s.fn == nil {
		return fmt.Errorf("func %q: nil handler: %w", s.name, berr.ErrInvalidSource)
	}

	mt := cbus.TypeOf[M]()
	if mt.Kind() == 0 {
		return fmt.Errorf("func %q: %s is not a concrete message type: %w", s.name, mt, berr.ErrInvalidSource)
	}

	fn := s.fn
	c.add(&Binding{
		message: mt,
		name:    s.name,
		build:   func() cbus.UntypedHandlerFunc { return typed(fn) },
	})

	return nil
}

// Untyped associates one function with each of the given message types.
// It serves handlers that are generic over several message shapes and so
// cannot name a single parameter type.
func Untyped(name string, fn cbus.UntypedHandlerFunc, types ...cbus.MessageType) Source {
	if name == "" && fn != nil {
		name = funcName(fn)
	}

	return untypedSource{name: name, fn: fn, types: types}
}

type untypedSource struct {
	name  string
	fn    cbus.UntypedHandlerFunc
	types []cbus.MessageType
}

func (s untypedSource) Name() string { return s.name }

func (s untypedSource) collect(c *collector) error {
	if s.fn == nil {
		return fmt.Errorf("func %q: nil handler: %w", s.name, berr.ErrInvalidSource)
	}

	fn := s.fn

	for _, mt := range s.types {
		if mt.IsZero() || mt.Kind() == 0 {
			return fmt.Errorf("func %q: invalid message type %s: %w", s.name, mt, berr.ErrInvalidSource)
		}

		c.add(&Binding{
			message: mt,
			name:    s.name,
			build:   func() cbus.UntypedHandlerFunc { return fn },
		})
	}

	return nil
}

// OwnerMethod is one handler method of an owner type T.
type OwnerMethod[T any] struct {
	name  string
	types []cbus.MessageType
	call  func(owner T) cbus.UntypedHandlerFunc
	err   error
}

// Method binds a method expression such as (*Ledger).Deposit to the message
// type of its parameter. An empty name is derived from the method symbol.
func Method[T any, M cbus.Message](name string, fn func(T, context.Context, M) (cbus.Result, error)) OwnerMethod[T] {
	if fn == nil {
		return OwnerMethod[T]{name: name, err: berr.ErrInvalidSource}
	}

	if name == "" {
		name = funcName(fn)
	}

	return OwnerMethod[T]{
		name:  name,
		types: []cbus.MessageType{cbus.TypeOf[M]()},
		call: func(owner T) cbus.UntypedHandlerFunc {
			return typed(func(ctx context.Context, m M) (cbus.Result, error) { return fn(owner, ctx, m) })
		},
	}
}

// MethodFor associates one method with each of the given message types.
func MethodFor[T any](
	name string,
	fn func(T, context.Context, cbus.Message) (cbus.Result, error),
	types ...cbus.MessageType,
) OwnerMethod[T] {
	if fn == nil {
		return OwnerMethod[T]{name: name, err: berr.ErrInvalidSource}
	}

	if name == "" {
		name = funcName(fn)
	}

	return OwnerMethod[T]{
		name:  name,
		types: types,
		call: func(owner T) cbus.UntypedHandlerFunc {
			return func(ctx context.Context, m cbus.Message) (cbus.Result, error) { return fn(owner, ctx, m) }
		},
	}
}

// Owner registers the handler methods of type T. newT constructs a fresh
// instance for every invocation. Methods with unexported names are private
// and never bound. If T implements bus.CapabilityDeclarer, every declared
// message type must be handled by one of the bound methods.
func Owner[T any](newT func() T, methods ...OwnerMethod[T]) Source {
	return ownerSource[T]{name: reflect.TypeFor[T]().String(), newT: newT, methods: methods}
}

type ownerSource[T any] struct {
	name    string
	newT    func() T
	methods []OwnerMethod[T]
}

func (s ownerSource[T]) Name() string { return s.name }

func (s ownerSource[T]) collect(c *collector) error {
	if s.newT == nil {
		return fmt.Errorf("owner %s: nil constructor: %w", s.name, berr.ErrInvalidSource)
	}

	newT := s.newT
	bound := make(map[cbus.MessageType]bool)

	for _, m := range s.methods {
		if m.err != nil {
			return fmt.Errorf("owner %s method %q: %w", s.name, m.name, m.err)
		}

		if !token.IsExported(m.name) {
			continue
		}

		call := m.call

		for _, mt := range m.types {
			if mt.IsZero() || mt.Kind() == 0 {
				return fmt.Errorf("owner %s method %q: invalid message type %s: %w", s.name, m.name, mt, berr.ErrInvalidSource)
			}

			bound[mt] = true

			c.add(&Binding{
				message: mt,
				owner:   s.name,
				name:    m.name,
				build:   func() cbus.UntypedHandlerFunc { return call(newT()) },
			})
		}
	}

	return s.checkCapabilities(bound)
}

func (s ownerSource[T]) checkCapabilities(bound map[cbus.MessageType]bool) error {
	declarer, ok := any(s.newT()).(cbus.CapabilityDeclarer)
	if !ok {
		return nil
	}

	var missing []string

	for _, mt := range declarer.Capabilities() {
		if bound[mt] || slices.Contains(missing, mt.String()) {
			continue
		}

		missing = append(missing, mt.String())
	}

	if len(missing) > 0 {
		return &berr.UnboundCommandError{Owner: s.name, Missing: missing}
	}

	return nil
}

// Module groups sources under a fully-qualified namespace name.
// Nil members are ignored; nested modules are walked recursively.
func Module(name string, members ...Source) Source {
	return moduleSource{name: name, members: members}
}

type moduleSource struct {
	name    string
	members []Source
}

func (s moduleSource) Name() string { return s.name }

func (s moduleSource) collect(c *collector) error {
	for _, m := range s.members {
		if m == nil {
			continue
		}

		if err := m.collect(c); err != nil {
			return fmt.Errorf("module %s: %w", s.name, err)
		}
	}

	return nil
}

func typed[M cbus.Message](fn cbus.HandlerFunc[M]) cbus.UntypedHandlerFunc {
	return func(ctx context.Context, m cbus.Message) (cbus.Result, error) {
		v, ok := m.(M)
		if !ok {
			return cbus.None(), fmt.Errorf("handle %T: %w", m, berr.ErrHandlerTypeMismatch)
		}

		return fn(ctx, v)
	}
}

// funcName returns the short symbol name of fn, e.g. "Deposit" for
// "example.com/ledger.(*Ledger).Deposit-fm".
func funcName(fn any) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return ""
	}

	name := strings.TrimSuffix(f.Name(), "-fm")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}

	return name
}
