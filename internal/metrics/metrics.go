package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Checkout outcomes.
const (
	OutcomeSuccess           = "success"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeReservationFailed = "reservation_failed"
	OutcomeCommitFailed      = "commit_failed"
	OutcomeError             = "error"
)

// Reasons a reservation was handed back to the catalog.
const (
	ReasonReservation = "reservation"
	ReasonCommit      = "commit"
	ReasonCancel      = "cancel"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry      *prometheus.Registry
	checkouts     *prometheus.CounterVec
	compensations *prometheus.CounterVec
	reservation   prometheus.Histogram
	requests      *prometheus.CounterVec
}

// New registers the collectors on reg, or on a fresh registry when reg is nil.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Checkouts by outcome.",
		}, []string{"outcome"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_compensations_total",
			Help:      "Stock units returned to the catalog, by reason.",
		}, []string{"reason"}),
		reservation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reservation_duration_seconds",
			Help:      "Time spent reserving stock for one checkout.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
	}

	reg.MustRegister(m.checkouts, m.compensations, m.reservation, m.requests)
	return m
}

func (m *Metrics) Checkout(outcome string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(outcome).Inc()
}

// Compensated counts qty units restored for reason.
func (m *Metrics) Compensated(reason string, qty int) {
	if m == nil || qty <= 0 {
		return
	}
	m.compensations.WithLabelValues(reason).Add(float64(qty))
}

func (m *Metrics) ObserveReservation(d time.Duration) {
	if m == nil {
		return
	}
	m.reservation.Observe(d.Seconds())
}

func (m *Metrics) HTTPRequest(route string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
