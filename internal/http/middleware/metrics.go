// Package middleware contains shared Gin middleware used by the claim web
// service.
//
// This file exposes Prometheus instrumentation: generic HTTP traffic metrics
// plus a claim-outcome counter specific to this service. Label cardinality is
// kept bounded by using the registered Gin route as the path label.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Claim outcome label values for ClaimOutcome.
const (
	ClaimOutcomeClaimed        = "claimed"
	ClaimOutcomeAlreadyClaimed = "already_claimed"
	ClaimOutcomeNotFound       = "not_found"
	ClaimOutcomeError          = "error"
)

var (
	// httpReqs counts requests by method, route path, and status code.
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// httpLat records request duration in seconds by method and route path.
	// Status is omitted to keep histogram cardinality low.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// httpInflight gauges the number of in-flight requests.
	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// claimOutcomes counts claim page hits by outcome, the one business
	// metric this service owns.
	claimOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "giveaway_claims_total",
			Help: "Total claim page lookups by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, claimOutcomes)
}

// ClaimOutcome records one claim page lookup with the given outcome label.
func ClaimOutcome(outcome string) {
	claimOutcomes.WithLabelValues(outcome).Inc()
}

// Metrics returns a Gin middleware that instruments requests with Prometheus.
//
// The "path" label uses the registered route (c.FullPath()) so security codes
// in /claim/:code never become label values. Unmatched routes are masked the
// same way as in the access log.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		dur := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = MaskClaimPath(c.Request.URL.Path)
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		httpReqs.WithLabelValues(method, path, status).Inc()
		httpLat.WithLabelValues(method, path).Observe(dur)
	}
}
