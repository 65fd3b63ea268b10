package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	// method, path, status_code
	HTTPRequestsTotal *prometheus.CounterVec

	// method, path
	HTTPRequestDuration *prometheus.HistogramVec

	// result: success, unavailable, error
	SeatLocksTotal *prometheus.CounterVec

	SeatLockExpirationsTotal prometheus.Counter

	// result: confirmed, payment_failed, lock_expired, error
	BookingsTotal *prometheus.CounterVec

	CancellationsTotal prometheus.Counter

	RefundAmountTotal prometheus.Counter
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers every collector on reg; tests pass a fresh registry.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		SeatLocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_locks_total",
				Help: "Seat lock attempts by result",
			},
			[]string{"result"},
		),
		SeatLockExpirationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "seat_lock_expirations_total",
				Help: "Seat locks released by the expiry timer",
			},
		),
		BookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookings_total",
				Help: "Booking attempts by result",
			},
			[]string{"result"},
		),
		CancellationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cancellations_total",
				Help: "Cancelled bookings",
			},
		),
		RefundAmountTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "refund_amount_total",
				Help: "Sum of refunded amounts",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SeatLocksTotal,
		m.SeatLockExpirationsTotal,
		m.BookingsTotal,
		m.CancellationsTotal,
		m.RefundAmountTotal,
	)

	return m
}

// NewNop returns metrics bound to a private registry, for wiring that does
// not expose /metrics.
func NewNop() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}
