package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Total number of inbound webhooks",
	}, []string{"type"})

	WebhooksProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_processed_total",
		Help: "Total number of webhooks by final status",
	}, []string{"type", "status"})

	WebhookProcessingLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_processing_latency_seconds",
		Help:    "Latency of webhook reconciliation",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	VariantResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "variant_resolutions_total",
		Help: "Total number of variant resolutions by outcome",
	}, []string{"outcome"})

	SalesAdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_adjustments_total",
		Help: "Total number of sales ledger adjustments",
	}, []string{"direction"})

	SalesUnitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_units_total",
		Help: "Total number of units applied to the sales ledger",
	}, []string{"direction"})

	DuplicateDeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_deliveries_total",
		Help: "Total number of duplicate order webhooks skipped",
	})

	EnrichmentRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrichment_requests_total",
		Help: "Total number of order detail fetches",
	}, []string{"result"})

	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pending_sweep_runs_total",
		Help: "Total number of pending sweep runs",
	}, []string{"result"})

	SweepEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pending_sweep_events_total",
		Help: "Total number of pending events reprocessed by resulting status",
	}, []string{"status"})

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
