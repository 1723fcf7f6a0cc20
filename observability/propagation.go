package observability

import (
	"context"

	"github.com/next-trace/scg-planning-notify/contract/notify"
	"go.opentelemetry.io/otel/propagation"
)

// Propagator carries W3C trace context and baggage in message headers.
type Propagator struct {
	p propagation.TextMapPropagator
}

var _ notify.HeaderPropagator = Propagator{}

// NewPropagator returns a trace-context and baggage propagator.
func NewPropagator() Propagator {
	return Propagator{p: propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})}
}

func (p Propagator) Inject(ctx context.Context, headers map[string]string) {
	if headers == nil {
		return
	}

	p.p.Inject(ctx, propagation.MapCarrier(headers))
}

func (p Propagator) Extract(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}

	return p.p.Extract(ctx, propagation.MapCarrier(headers))
}
