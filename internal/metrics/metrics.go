// Package metrics exposes Prometheus counters for the dispatch engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_sends_total",
		Help: "Adapter calls by channel, provider and outcome.",
	}, []string{"channel", "provider", "outcome"})

	SendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notify_send_duration_seconds",
		Help:    "Duration of adapter calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel", "provider"})

	RetriesScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_retries_scheduled_total",
		Help: "Failed attempts that were re-enqueued.",
	}, []string{"channel"})

	FailedFinal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_failed_final_total",
		Help: "Notifications that reached failed_final from a send attempt.",
	}, []string{"channel", "class"})

	ClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_claim_conflicts_total",
		Help: "Claims lost to another worker.",
	})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_rate_limited_total",
		Help: "Sends held back by the rate limiter, by action taken.",
	}, []string{"channel", "provider", "action"})

	QueueReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_queue_reclaimed_total",
		Help: "Processing entries returned to the queue by the stuck-claim sweeper.",
	})

	WorkerPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_worker_panics_total",
		Help: "Panics recovered while processing a notification.",
	})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_webhook_events_total",
		Help: "Provider events by provider, type and result.",
	}, []string{"provider", "event", "result"})

	WebhookOrphans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_webhook_orphans_total",
		Help: "Provider events whose notification could not be found.",
	}, []string{"provider"})

	CampaignEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_campaign_enqueued_total",
		Help: "Campaign notifications moved from pending to queued.",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method", "status"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"path", "method", "status"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records RED metrics for every request.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		status := strconv.Itoa(c.Writer.Status())
		httpDuration.WithLabelValues(path, c.Request.Method, status).Observe(time.Since(start).Seconds())
		httpRequests.WithLabelValues(path, c.Request.Method, status).Inc()
	}
}
