package bus

import (
	"iter"
	"sync/atomic"

	berr "github.com/next-trace/scg-cmdr/contract/errors"
)

// Result is what a handler produced: nothing, one value, an ordered list of
// values, or a finite stream drained by the bus before chaining.
//
// Each produced item is a Command to execute next, a DomainEvent to publish,
// or opaque data returned to the caller.
type Result struct {
	items  []any
	stream iter.Seq2[any, error]
	used   *atomic.Bool
}

// None is the empty result.
func None() Result { return Result{} }

// Value wraps a single produced item. A nil value yields the empty result.
func Value(v any) Result {
	if v == nil {
		return Result{}
	}

	return Result{items: []any{v}}
}

// Values wraps an ordered list of produced items.
func Values(vs ...any) Result { return Result{items: vs} }

// Stream wraps a lazily produced, finite sequence. The sequence is consumed
// once; a second Drain reports ErrStreamConsumed. A non-nil error yielded by
// the sequence stops the drain and is returned as is.
func Stream(seq iter.Seq2[any, error]) Result {
	return Result{stream: seq, used: new(atomic.Bool)}
}

// Drain materializes the result into an ordered slice.
func (r Result) Drain() ([]any, error) {
	if r.stream == nil {
		if len(r.items) == 0 {
			return nil, nil
		}

		return append([]any(nil), r.items...), nil
	}

	if !r.used.CompareAndSwap(false, true) {
		return nil, berr.ErrStreamConsumed
	}

	var out []any

	for v, err := range r.stream {
		if err != nil {
			return out, err
		}

		out = append(out, v)
	}

	return out, nil
}
