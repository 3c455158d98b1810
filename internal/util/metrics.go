package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations by operation and outcome",
	}, []string{"op", "outcome"})

	DiscountApplicationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discount_applications_total",
		Help: "Total number of discount code applications by outcome",
	}, []string{"outcome"})

	CheckoutFinalizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_finalized_total",
		Help: "Total number of checkout finalizations by outcome",
	}, []string{"outcome"})

	CheckoutWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_warnings_total",
		Help: "Total number of non-fatal bookkeeping failures during finalization",
	}, []string{"step"})

	RefundRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_requests_total",
		Help: "Total number of refund requests by gateway",
	}, []string{"gateway"})

	RefundTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_transitions_total",
		Help: "Total number of refund status transitions",
	}, []string{"status"})

	GiftClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gift_claims_total",
		Help: "Total number of gift claims by outcome",
	}, []string{"outcome"})

	CatalogCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_total",
		Help: "Catalog cache lookups by class and result",
	}, []string{"class", "result"})

	GatewayCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_call_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway", "op"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Support notifications sent by event type and outcome",
	}, []string{"event", "outcome"})

	SessionSaveFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "session_save_failures_total",
		Help: "Total number of sessions that could not be persisted",
	})

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
