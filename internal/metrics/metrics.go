// Package metrics exposes Prometheus collectors for the engine's
// operational state: active sessions, tick throughput, grid depth, and
// webhook delivery health. Registered once in init() and served at
// /metrics by the admin HTTP surface.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hedgeengine_sessions_active",
		Help: "Number of currently registered trading sessions.",
	})

	EngineTicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hedgeengine_engine_ticks_total",
		Help: "Total engine ticks processed, by user_id.",
	}, []string{"user_id"})

	GridPositionsOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hedgeengine_grid_positions_open",
		Help: "Open grid positions per user and side.",
	}, []string{"user_id", "side"})

	WebhookQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hedgeengine_webhook_queue_depth",
		Help: "Current depth of each session's webhook delivery queue.",
	}, []string{"user_id"})

	WebhookEventsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hedgeengine_webhook_events_dropped_total",
		Help: "Webhook events dropped due to a full delivery queue.",
	}, []string{"user_id"})

	WebhookDeliveryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hedgeengine_webhook_delivery_attempts_total",
		Help: "Webhook delivery attempts, by outcome (ok|retry|failed).",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		SessionsActive,
		EngineTicksTotal,
		GridPositionsOpen,
		WebhookQueueDepth,
		WebhookEventsDroppedTotal,
		WebhookDeliveryAttemptsTotal,
	)
}
