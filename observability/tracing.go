package observability

import (
	"context"

	"github.com/next-trace/scg-planning-notify/contract/notify"
	"github.com/next-trace/scg-planning-notify/router"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/next-trace/scg-planning-notify"

// Tracer provides OpenTelemetry tracing for notification handlers.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return NewTracerWithProvider(otel.GetTracerProvider())
}

// NewTracerWithProvider creates a tracer from tp.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

// StartHandleSpan starts a span for handling one notification.
func (t *Tracer) StartHandleSpan(ctx context.Context, n notify.Notification) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "planning.notify.handle",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("notify.event", n.Name),
			attribute.String("notify.item", n.Payload.Item),
		),
	)
}

// Middleware wraps every routed handler in a span.
func (t *Tracer) Middleware() router.Middleware {
	return func(next notify.Handler) notify.Handler {
		return func(ctx context.Context, n notify.Notification, state notify.StateFunc) error {
			ctx, span := t.StartHandleSpan(ctx, n)
			defer span.End()

			err := next(ctx, n, state)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}

			return err
		}
	}
}
