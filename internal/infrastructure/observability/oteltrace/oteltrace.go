// Package oteltrace adapts an otel TracerProvider to the observability.Tracer port.
package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/paylink/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultName = "paylink"

type Option func(*options)

type options struct {
	provider trace.TracerProvider
	version  string
	attrs    []attribute.KeyValue
}

// WithTracerProvider uses tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.provider = tp
		}
	}
}

// WithVersion records the build version as the instrumentation version.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithAttributes adds attrs to every span, ahead of the per-call ones.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(o *options) { o.attrs = append(o.attrs, attrs...) }
}

// ServiceAttributes are the attributes paylink stamps on each span.
func ServiceAttributes(service, env string) []attribute.KeyValue {
	if service == "" {
		service = defaultName
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", service)}
	if env != "" {
		attrs = append(attrs, attribute.String("deployment.environment", env))
	}
	return attrs
}

type tracer struct {
	t     trace.Tracer
	attrs []attribute.KeyValue
}

// New returns a tracer named after the service. Without WithTracerProvider it
// resolves the global provider, whose spans are no-ops until one is installed.
func New(name string, opts ...Option) observability.Tracer {
	if name == "" {
		name = defaultName
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.provider == nil {
		o.provider = otel.GetTracerProvider()
	}

	var tracerOpts []trace.TracerOption
	if o.version != "" {
		tracerOpts = append(tracerOpts, trace.WithInstrumentationVersion(o.version))
	}
	return &tracer{t: o.provider.Tracer(name, tracerOpts...), attrs: o.attrs}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if len(t.attrs) > 0 {
		attrs = append(append(make([]attribute.KeyValue, 0, len(t.attrs)+len(attrs)), t.attrs...), attrs...)
	}
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
