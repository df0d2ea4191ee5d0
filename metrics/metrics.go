// Package metrics exposes bus activity as Prometheus series.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/next-trace/scg-cmdr/servicebus"
)

// Prom holds the bus collectors on a private registry.
type Prom struct {
	reg *prometheus.Registry

	Invocations *prometheus.CounterVec
	Failures    *prometheus.CounterVec
	Emitted     *prometheus.CounterVec
	Latency     *prometheus.HistogramVec
	JobsFailed  *prometheus.CounterVec
}

// NewProm registers the collectors on a fresh prometheus.Registry.
func NewProm() *Prom {
	labels := []string{"kind", "message"}

	p := &Prom{
		reg: prometheus.NewRegistry(),
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cmdr_invocations_total", Help: "Handler invocations",
		}, labels),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cmdr_invocation_failures_total", Help: "Handler invocations that returned an error",
		}, labels),
		Emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cmdr_emitted_items_total", Help: "Items produced by handlers",
		}, labels),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cmdr_invocation_seconds",
			Help:    "Handler latency, nested commands excluded",
			Buckets: prometheus.DefBuckets,
		}, labels),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cmdr_jobs_failed_total", Help: "Queued jobs that failed every attempt",
		}, []string{"transport"}),
	}
	p.reg.MustRegister(p.Invocations, p.Failures, p.Emitted, p.Latency, p.JobsFailed)

	return p
}

// Handler serves the private registry in the Prometheus text format.
func (p *Prom) Handler() http.Handler { return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{}) }

// Middleware records one observation per handler invocation.
func (p *Prom) Middleware() servicebus.Middleware {
	return func(next servicebus.Invoker) servicebus.Invoker {
		return func(ctx context.Context, call servicebus.Call) ([]any, error) {
			lv := []string{call.Type.Kind().String(), call.Type.Name()}
			start := time.Now()

			items, err := next(ctx, call)

			p.Latency.WithLabelValues(lv...).Observe(time.Since(start).Seconds())
			p.Invocations.WithLabelValues(lv...).Inc()

			if err != nil {
				p.Failures.WithLabelValues(lv...).Inc()
			} else {
				p.Emitted.WithLabelValues(lv...).Add(float64(len(items)))
			}

			return items, err
		}
	}
}

// JobFailed counts a job that the worker gave up on.
func (p *Prom) JobFailed(transport string) { p.JobsFailed.WithLabelValues(transport).Inc() }
