package observability_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
	"github.com/next-trace/scg-planning-notify/observability"
	"github.com/next-trace/scg-planning-notify/router"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

func newRouter(t *testing.T, h notify.Handler, mw ...router.Middleware) *router.Router {
	t.Helper()

	r, err := router.New(
		[]router.Entry{{Name: "events:lock", Resolve: func() notify.Handler { return h }}},
		router.WithMiddleware(mw...),
	)
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	return r
}

func noState() notify.State { return notify.State{} }

func TestMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	fail := false
	r := newRouter(t, func(context.Context, notify.Notification, notify.StateFunc) error {
		if fail {
			return errors.New("boom")
		}

		return nil
	}, m.Middleware())

	_ = r.Route(t.Context(), notify.Notification{Name: "events:lock"}, noState)
	_ = r.Route(t.Context(), notify.Notification{Name: "events:lock"}, noState)
	fail = true
	_ = r.Route(t.Context(), notify.Notification{Name: "events:lock"}, noState)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	counts := map[string]float64{}
	found := false

	for _, f := range families {
		if f.GetName() == "planning_notify_handled_total" {
			found = true

			for _, metric := range f.GetMetric() {
				for _, l := range metric.GetLabel() {
					if l.GetName() == "outcome" {
						counts[l.GetValue()] = metric.GetCounter().GetValue()
					}
				}
			}
		}
	}

	if !found || counts["ok"] != 2 || counts["error"] != 1 {
		t.Fatalf("found=%v counts=%v", found, counts)
	}
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	m.RecordHandled("events:spiked", nil, 0)

	rec := httptest.NewRecorder()
	observability.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 || !strings.Contains(rec.Body.String(), `planning_notify_handled_total{event="events:spiked",outcome="ok"} 1`) {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestMetrics_OnError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	m.OnError(notify.Message{}, fmt.Errorf("decode: %w", nerr.ErrDecodeFailed))
	m.OnError(notify.Message{}, errors.New("boom"))
	m.OnError(notify.Message{}, errors.New("boom"))

	rec := httptest.NewRecorder()
	observability.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `planning_notify_failed_total{reason="decode"} 1`) ||
		!strings.Contains(body, `planning_notify_failed_total{reason="handler"} 2`) {
		t.Fatalf("body=%s", body)
	}
}

func TestNewMetrics_NilRegisterer(t *testing.T) {
	if m := observability.NewMetrics(nil); m.HandledTotal == nil || m.InFlight == nil {
		t.Fatalf("instruments missing")
	}
}

func TestTracer_MiddlewarePassesThrough(t *testing.T) {
	boom := errors.New("boom")
	calls := 0

	r := newRouter(t, func(context.Context, notify.Notification, notify.StateFunc) error {
		calls++
		return boom
	}, observability.NewTracer().Middleware())

	if err := r.Route(t.Context(), notify.Notification{Name: "events:lock"}, noState); !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestPropagator_RoundTrip(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(t.Context(), sc)

	p := observability.NewPropagator()
	headers := map[string]string{}
	p.Inject(ctx, headers)

	if headers["traceparent"] != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Fatalf("headers=%v", headers)
	}

	got := trace.SpanContextFromContext(p.Extract(t.Context(), headers))
	if got.TraceID() != tid || !got.IsRemote() {
		t.Fatalf("extracted=%+v", got)
	}

	if p.Extract(t.Context(), nil) != t.Context() {
		t.Fatalf("empty headers must return ctx unchanged")
	}

	p.Inject(ctx, nil)
}
