package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of local cart mutations",
	}, []string{"op"})

	SyncPushesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_sync_pushes_total",
		Help: "Total number of sync pushes sent",
	})

	SyncPushFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_sync_push_failures_total",
		Help: "Total number of failed sync pushes (retried on next debounce)",
	})

	SyncPullsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_sync_pulls_dropped_total",
		Help: "Total number of pulled snapshots dropped",
	}, []string{"reason"})

	SyncPullsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_sync_pulls_applied_total",
		Help: "Total number of pulled snapshots applied to local state",
	})

	SyncPushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cart_sync_push_latency_seconds",
		Help:    "Latency of sync push round trips",
		Buckets: prometheus.DefBuckets,
	})

	MergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_merges_total",
		Help: "Total number of sign-in cart merges",
	}, []string{"outcome"})

	AnalyticsFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_analytics_flush_total",
		Help: "Total number of analytics buffer flushes",
	}, []string{"outcome"})

	AnalyticsEventsBuffered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cart_analytics_events_buffered",
		Help: "Current number of buffered analytics events",
	})

	EstimateRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_estimate_requests_total",
		Help: "Total number of shipping/tax estimate requests",
	}, []string{"outcome"})

	HeartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_heartbeats_total",
		Help: "Total number of abandoned-cart heartbeats sent",
	})

	CheckoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_checkouts_total",
		Help: "Total number of checkout attempts",
	}, []string{"outcome"})

	CrossSellFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_cross_sell_fetches_total",
		Help: "Total number of cross-sell candidate fetches",
	}, []string{"source"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
