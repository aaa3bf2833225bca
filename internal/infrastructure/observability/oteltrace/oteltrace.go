package oteltrace

import (
	"context"

	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type tracer struct{ t trace.Tracer }

// New returns a tracer bound to the global provider; install one with otelsdk.SetupTracing first.
func New(name string) observability.Tracer {
	if name == "" {
		name = "minishop-catalog"
	}
	return &tracer{t: otel.Tracer(name)}
}

// FromProvider binds a tracer to an explicit provider (tests use the sdk recorder).
func FromProvider(tp trace.TracerProvider, name string) observability.Tracer {
	return &tracer{t: tp.Tracer(name)}
}

func (t *tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
