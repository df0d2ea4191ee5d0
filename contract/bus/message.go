package bus

import (
	"reflect"
)

// Kind is the category of a message.
type Kind uint8

const (
	// KindCommand marks messages that mutate state. A command has exactly one handler.
	KindCommand Kind = iota + 1
	// KindQuery marks read-only requests for data. A query has exactly one handler.
	KindQuery
	// KindDomainEvent marks facts about completed mutations. Any number of handlers may observe them.
	KindDomainEvent
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindQuery:
		return "query"
	case KindDomainEvent:
		return "domain event"
	default:
		return "unknown"
	}
}

// Message is the sealed root of the message taxonomy.
// Concrete messages embed exactly one of IsCommand, IsQuery or IsDomainEvent.
type Message interface {
	Kind() Kind
	sealed()
}

// Command is a message expressing intent to change state.
type Command interface {
	Message
	command()
}

// Query is a message requesting data. Queries must not change state.
type Query interface {
	Message
	query()
}

// DomainEvent records that a mutation already happened.
type DomainEvent interface {
	Message
	domainEvent()
}

// IsCommand is embedded by command types.
type IsCommand struct{}

func (IsCommand) Kind() Kind { return KindCommand }
func (IsCommand) sealed()    {}
func (IsCommand) command()   {}

// IsQuery is embedded by query types.
type IsQuery struct{}

func (IsQuery) Kind() Kind { return KindQuery }
func (IsQuery) sealed()    {}
func (IsQuery) query()     {}

// IsDomainEvent is embedded by domain event types.
type IsDomainEvent struct{}

func (IsDomainEvent) Kind() Kind   { return KindDomainEvent }
func (IsDomainEvent) sealed()      {}
func (IsDomainEvent) domainEvent() {}

// MessageType identifies a concrete message type together with its category.
// It is comparable and safe to use as a map key.
type MessageType struct {
	rt   reflect.Type
	kind Kind
}

// TypeOf returns the MessageType of M.
func TypeOf[M Message]() MessageType {
	var zero M

	return MessageType{rt: reflect.TypeFor[M](), kind: kindOf(zero)}
}

// TypeOfMessage returns the MessageType of a message value.
func TypeOfMessage(m Message) MessageType {
	return MessageType{rt: reflect.TypeOf(m), kind: kindOf(m)}
}

// kindOf reads the kind from a zero value. Pointer message types are
// resolved through a fresh element so a nil receiver is never dereferenced.
func kindOf(m Message) Kind {
	rv := reflect.ValueOf(m)
	if !rv.IsValid() {
		return 0
	}

	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		fresh, ok := reflect.New(rv.Type().Elem()).Interface().(Message)
		if !ok {
			return 0
		}

		return fresh.Kind()
	}

	return m.Kind()
}

// Kind returns the category of the message type.
func (t MessageType) Kind() Kind { return t.kind }

// Zero returns a zero message of the type. Pointer types get a pointer to a
// fresh element. The zero MessageType yields nil.
func (t MessageType) Zero() Message {
	if t.rt == nil {
		return nil
	}

	var v reflect.Value
	if t.rt.Kind() == reflect.Pointer {
		v = reflect.New(t.rt.Elem())
	} else {
		v = reflect.New(t.rt).Elem()
	}

	m, _ := v.Interface().(Message)

	return m
}

// Type returns the underlying Go type.
func (t MessageType) Type() reflect.Type { return t.rt }

// IsZero reports whether t is the zero MessageType.
func (t MessageType) IsZero() bool { return t.rt == nil }

// Exclusive reports whether at most one handler may be bound to the type.
func (t MessageType) Exclusive() bool {
	return t.kind == KindCommand || t.kind == KindQuery
}

// Name returns the unqualified type name, dereferencing pointers.
// It is the routing name used by transports.
func (t MessageType) Name() string {
	if t.rt == nil {
		return ""
	}

	rt := t.rt
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}

	if rt.Name() == "" {
		return rt.String()
	}

	return rt.Name()
}

func (t MessageType) String() string {
	if t.rt == nil {
		return "<nil>"
	}

	return t.rt.String()
}
