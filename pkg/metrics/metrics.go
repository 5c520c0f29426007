package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking related metrics
	Bookings      *prometheus.CounterVec
	Cancellations *prometheus.CounterVec

	// Availability metrics
	Recomputes       *prometheus.CounterVec
	RecomputeLatency prometheus.Histogram
	DaysMarkedFull   prometheus.Counter

	// HTTP metrics
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec

	// Notification metrics
	NotificationsFailed *prometheus.CounterVec
}

// New creates all application metrics and registers them with reg.
// A nil reg leaves the collectors unregistered, which is what tests want.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Total number of booking attempts by result",
		}, []string{"result"}),
		Cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Total number of cancellation attempts by result",
		}, []string{"result"}),
		Recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_recomputes_total",
			Help:      "Total number of availability flag recomputes by result",
		}, []string{"result"}),
		RecomputeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "availability_recompute_duration_seconds",
			Help:      "Duration of availability flag recomputes",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		DaysMarkedFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_days_marked_full_total",
			Help:      "Number of times a day transitioned to full",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
		}, []string{"method", "path", "status"}),
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		NotificationsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_failed_total",
			Help:      "Total number of failed notification deliveries by channel",
		}, []string{"channel"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Bookings,
			m.Cancellations,
			m.Recomputes,
			m.RecomputeLatency,
			m.DaysMarkedFull,
			m.RequestDuration,
			m.RequestTotal,
			m.NotificationsFailed,
		)
	}

	return m
}
