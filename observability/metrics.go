package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	nerr "github.com/next-trace/scg-planning-notify/contract/errors"
	"github.com/next-trace/scg-planning-notify/contract/notify"
	"github.com/next-trace/scg-planning-notify/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus instruments for notification handling.
type Metrics struct {
	HandledTotal   *prometheus.CounterVec
	HandleDuration *prometheus.HistogramVec
	InFlight       prometheus.Gauge
	FailedTotal    *prometheus.CounterVec
}

// NewMetrics creates the instruments and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HandledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planning_notify_handled_total",
			Help: "Notifications routed to a handler, by event name and outcome.",
		}, []string{"event", "outcome"}),
		HandleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planning_notify_handle_duration_seconds",
			Help:    "Handler latency by event name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"event"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planning_notify_in_flight",
			Help: "Handlers currently running.",
		}),
		FailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planning_notify_failed_total",
			Help: "Inbound messages dropped as undecodable or failed by their handler.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(m.HandledTotal, m.HandleDuration, m.InFlight, m.FailedTotal)
	}

	return m
}

// RecordHandled records one handled notification.
func (m *Metrics) RecordHandled(event string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	m.HandledTotal.WithLabelValues(event, outcome).Inc()
	m.HandleDuration.WithLabelValues(event).Observe(d.Seconds())
}

// OnError counts a message the consumer failed on. It fits consumer.WithOnError.
func (m *Metrics) OnError(_ notify.Message, err error) {
	reason := "handler"
	if errors.Is(err, nerr.ErrDecodeFailed) {
		reason = "decode"
	}

	m.FailedTotal.WithLabelValues(reason).Inc()
}

// Middleware counts and times every routed handler.
func (m *Metrics) Middleware() router.Middleware {
	return func(next notify.Handler) notify.Handler {
		return func(ctx context.Context, n notify.Notification, state notify.StateFunc) error {
			m.InFlight.Inc()
			defer m.InFlight.Dec()

			start := time.Now()
			err := next(ctx, n, state)
			m.RecordHandled(n.Name, err, time.Since(start))

			return err
		}
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
