package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan outcomes.
const (
	OutcomeRecorded        = "recorded"
	OutcomeNoActiveSession = "no_active_session"
	OutcomeRejected        = "rejected"
	OutcomeStorageError    = "storage_error"
)

var (
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_scans_total",
		Help: "Card scans received by the ingestion endpoint, by outcome.",
	}, []string{"outcome"})

	UnknownCards = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_unknown_cards_total",
		Help: "Recorded scans whose UID is not in the student directory.",
	})

	SessionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_session_changes_total",
		Help: "Active session set and deactivate operations.",
	}, []string{"action"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// GinMiddleware records request count and latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
