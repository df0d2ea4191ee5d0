package bus

import "time"

// Queueable commands are handed to the JobEnqueuer by Dispatch instead of
// being executed in the caller's goroutine. Execute ignores it.
type Queueable interface {
	QueueName() string
	Delay() time.Duration
}

// QueueableListener is the listener-side counterpart of Queueable.
type QueueableListener interface {
	QueueName() string
	Delay() time.Duration
}

// Retryable states how many attempts a worker may spend on a queued job.
type Retryable interface {
	Tries() int
}

// QueueOptionsFor derives queue options from a Queueable value, including
// Tries when it also implements Retryable.
func QueueOptionsFor(q Queueable) QueueOptions {
	o := QueueOptions{Queue: q.QueueName(), DelaySeconds: int(q.Delay().Seconds())}
	if r, ok := q.(Retryable); ok && r.Tries() > 0 {
		o.Tries = r.Tries()
	}

	return o
}
