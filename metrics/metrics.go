// ABOUTME: Prometheus metrics for sync passes, approvals, background jobs and HTTP requests
// ABOUTME: Registers on a caller-supplied registerer; a nil *Metrics records nothing
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SyncRecords         *prometheus.CounterVec
	SyncPassDuration    *prometheus.HistogramVec
	ApprovalTransitions *prometheus.CounterVec
	Jobs                *prometheus.CounterVec
	QueueDepth          prometheus.Gauge

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SyncRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsync_sync_records_total",
				Help: "Records handled by sync passes",
			},
			[]string{"direction", "entity", "outcome"}, // outcome: created, updated, unchanged, skipped, synced, failed
		),
		SyncPassDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldsync_sync_pass_duration_seconds",
				Help:    "Duration of a full sync pass",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"direction", "entity"},
		),
		ApprovalTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsync_approval_transitions_total",
				Help: "Approval state transitions applied",
			},
			[]string{"entity", "to"},
		),
		Jobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsync_jobs_total",
				Help: "Background jobs by outcome",
			},
			[]string{"kind", "outcome"}, // outcome: succeeded, failed, rejected
		),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fieldsync_jobs_queue_depth",
			Help: "Jobs waiting in the background queue",
		}),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldsync_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldsync_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}
}

// Middleware creates an Echo middleware recording request counts and latency
// by route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			path := c.Path()
			m.HTTPRequestsTotal.WithLabelValues(c.Request().Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(c.Request().Method, path, status).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

func (m *Metrics) RecordSyncRecords(direction, entity, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SyncRecords.WithLabelValues(direction, entity, outcome).Add(float64(n))
}

func (m *Metrics) ObservePass(direction, entity string, d time.Duration) {
	if m == nil {
		return
	}
	m.SyncPassDuration.WithLabelValues(direction, entity).Observe(d.Seconds())
}

func (m *Metrics) RecordTransition(entity, to string) {
	if m == nil {
		return
	}
	m.ApprovalTransitions.WithLabelValues(entity, to).Inc()
}

func (m *Metrics) RecordJob(kind, outcome string) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
