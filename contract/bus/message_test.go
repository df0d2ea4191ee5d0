package bus_test

import (
	"errors"
	"testing"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	berr "github.com/next-trace/scg-cmdr/contract/errors"
)

type deposit struct {
	cbus.IsCommand
	Amount int
}

type balance struct{ cbus.IsQuery }

type deposited struct {
	cbus.IsDomainEvent
	Amount int
}

func classify(v any) string {
	switch v.(type) {
	case cbus.Command:
		return "command"
	case cbus.Query:
		return "query"
	case cbus.DomainEvent:
		return "event"
	default:
		return "data"
	}
}

func TestTaxonomy_TypeSwitch(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{deposit{Amount: 1}, "command"},
		{&deposit{Amount: 1}, "command"},
		{balance{}, "query"},
		{deposited{}, "event"},
		{"plain", "data"},
		{42, "data"},
	}

	for _, tc := range tests {
		if got := classify(tc.in); got != tc.want {
			t.Fatalf("%T: got %s want %s", tc.in, got, tc.want)
		}
	}
}

func TestMessageType(t *testing.T) {
	mt := cbus.TypeOf[deposit]()
	if mt.Kind() != cbus.KindCommand || !mt.Exclusive() {
		t.Fatalf("deposit kind=%s", mt.Kind())
	}

	if mt != cbus.TypeOfMessage(deposit{Amount: 5}) {
		t.Fatalf("TypeOf and TypeOfMessage disagree")
	}

	if mt.Name() != "deposit" || mt.String() != "bus_test.deposit" {
		t.Fatalf("name=%s string=%s", mt.Name(), mt.String())
	}

	ptr := cbus.TypeOf[*deposit]()
	if ptr.Kind() != cbus.KindCommand || ptr == mt || ptr.Name() != "deposit" {
		t.Fatalf("pointer type=%v", ptr)
	}

	if got := cbus.TypeOfMessage((*deposit)(nil)); got != ptr {
		t.Fatalf("typed nil pointer type=%v", got)
	}

	ev := cbus.TypeOf[deposited]()
	if ev.Kind() != cbus.KindDomainEvent || ev.Exclusive() {
		t.Fatalf("event kind=%s", ev.Kind())
	}

	if cbus.TypeOf[balance]().Kind() != cbus.KindQuery {
		t.Fatalf("query kind wrong")
	}

	if cbus.TypeOf[cbus.Command]().Kind() != 0 {
		t.Fatalf("interface types have no kind")
	}

	var zero cbus.MessageType
	if !zero.IsZero() || zero.Name() != "" || zero.String() != "<nil>" {
		t.Fatalf("zero message type=%v", zero)
	}
}

func TestResult_Drain(t *testing.T) {
	items, err := cbus.None().Drain()
	if err != nil || len(items) != 0 {
		t.Fatalf("none=%v %v", items, err)
	}

	items, _ = cbus.Value(nil).Drain()
	if len(items) != 0 {
		t.Fatalf("nil value should be empty: %v", items)
	}

	items, _ = cbus.Value(7).Drain()
	if len(items) != 1 || items[0] != 7 {
		t.Fatalf("value=%v", items)
	}

	items, _ = cbus.Values(1, "two", deposited{Amount: 3}).Drain()
	if len(items) != 3 || items[1] != "two" {
		t.Fatalf("values=%v", items)
	}
}

func TestResult_StreamIsDrainedOnce(t *testing.T) {
	produced := 0
	r := cbus.Stream(func(yield func(any, error) bool) {
		for i := range 3 {
			produced++
			if !yield(i, nil) {
				return
			}
		}
	})

	if produced != 0 {
		t.Fatalf("stream must be lazy")
	}

	items, err := r.Drain()
	if err != nil || len(items) != 3 || items[2] != 2 {
		t.Fatalf("drain=%v %v", items, err)
	}

	copied := r
	if _, err := copied.Drain(); !errors.Is(err, berr.ErrStreamConsumed) {
		t.Fatalf("want ErrStreamConsumed, got %v", err)
	}
}

func TestResult_StreamError(t *testing.T) {
	boom := errors.New("boom")
	r := cbus.Stream(func(yield func(any, error) bool) {
		if !yield("a", nil) {
			return
		}

		yield(nil, boom)
	})

	items, err := r.Drain()
	if !errors.Is(err, boom) || len(items) != 1 {
		t.Fatalf("items=%v err=%v", items, err)
	}
}
