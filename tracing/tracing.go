// Package tracing connects the bus to OpenTelemetry: one span per handler
// invocation and W3C trace context carried through broker headers.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	cbus "github.com/next-trace/scg-cmdr/contract/bus"
	"github.com/next-trace/scg-cmdr/servicebus"
)

const scope = "github.com/next-trace/scg-cmdr"

// Setup installs a global tracer provider exporting to endpoint over OTLP/HTTP.
// An empty endpoint leaves tracing disabled and returns a no-op shutdown.
func Setup(ctx context.Context, serviceName, endpoint string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Middleware opens a span around every handler invocation. Emitted commands
// run after their emitter's span ends and carry their nesting in cmdr.depth.
// A nil provider uses the global one.
func Middleware(tp trace.TracerProvider) servicebus.Middleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	tracer := tp.Tracer(scope)

	return func(next servicebus.Invoker) servicebus.Invoker {
		return func(ctx context.Context, call servicebus.Call) ([]any, error) {
			ctx, span := tracer.Start(ctx, "cmdr "+call.Type.Name(),
				trace.WithAttributes(
					attribute.String("cmdr.message.kind", call.Type.Kind().String()),
					attribute.String("cmdr.message.type", call.Type.String()),
					attribute.String("cmdr.handler", call.Binding.String()),
					attribute.Int("cmdr.depth", call.Depth),
				),
			)
			defer span.End()

			items, err := next(ctx, call)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())

				return items, err
			}

			span.SetAttributes(attribute.Int("cmdr.items", len(items)))

			return items, nil
		}
	}
}

// Propagator moves trace context between a context and transport headers.
type Propagator struct {
	prop propagation.TextMapPropagator
}

var (
	_ cbus.HeaderPropagator = Propagator{}
	_ cbus.HeaderExtractor  = Propagator{}
)

// NewPropagator wraps p; nil uses the global text map propagator at call time.
func NewPropagator(p propagation.TextMapPropagator) Propagator { return Propagator{prop: p} }

func (p Propagator) textMap() propagation.TextMapPropagator {
	if p.prop == nil {
		return otel.GetTextMapPropagator()
	}

	return p.prop
}

// Inject writes the span context of ctx into headers.
func (p Propagator) Inject(ctx context.Context, headers map[string]string) {
	if headers == nil {
		return
	}

	p.textMap().Inject(ctx, propagation.MapCarrier(headers))
}

// Extract returns ctx carrying the remote span context found in headers.
func (p Propagator) Extract(ctx context.Context, headers map[string]string) context.Context {
	return p.textMap().Extract(ctx, propagation.MapCarrier(headers))
}
