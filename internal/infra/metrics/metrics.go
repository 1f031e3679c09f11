// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pod"

// Metrics implements the metric ports of the checkout, payment and outbox
// components on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	latencyMS *prometheus.HistogramVec

	checkouts  *prometheus.CounterVec
	webhooks   *prometheus.CounterVec
	payments   *prometheus.CounterVec
	ordersPaid prometheus.Counter
	reviews    *prometheus.CounterVec
	outbox     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		latencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route", "method"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "total",
			Help:      "Checkout attempts by result.",
		}, []string{"result"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "webhooks_total",
			Help:      "Webhook deliveries by outcome.",
		}, []string{"outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "recorded_total",
			Help:      "Completed payments recorded by source.",
		}, []string{"source"}),
		ordersPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "orders_paid_total",
			Help:      "Orders moved to processing after full payment.",
		}),
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payment",
			Name:      "review_flagged_total",
			Help:      "Orders flagged for manual payment review by reason.",
		}, []string{"reason"}),
		outbox: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox relay publish attempts by topic and result.",
		}, []string{"topic", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latencyMS,
		m.checkouts, m.webhooks, m.payments, m.ordersPaid, m.reviews,
		m.outbox,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one HTTP request. route is the matched route
// pattern, never the raw path.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latencyMS.WithLabelValues(route, method).Observe(float64(elapsed.Microseconds()) / 1000)
}

func (m *Metrics) CheckoutCompleted() {
	m.checkouts.WithLabelValues("completed").Inc()
}

func (m *Metrics) CheckoutFailed(reason string) {
	m.checkouts.WithLabelValues(reason).Inc()
}

func (m *Metrics) WebhookHandled(outcome string) {
	m.webhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PaymentRecorded(source string) {
	m.payments.WithLabelValues(source).Inc()
}

func (m *Metrics) OrderPaid() {
	m.ordersPaid.Inc()
}

func (m *Metrics) ReviewFlagged(reason string) {
	m.reviews.WithLabelValues(reason).Inc()
}

func (m *Metrics) EventPublished(topic string) {
	m.outbox.WithLabelValues(topic, "published").Inc()
}

func (m *Metrics) PublishFailed(topic string) {
	m.outbox.WithLabelValues(topic, "failed").Inc()
}
