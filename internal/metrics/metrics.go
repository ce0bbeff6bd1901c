// Package metrics exposes Prometheus instruments for the synchronization engine.
// Everything is registered on the default registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Notifications counts fired transitions by kind (mood, status, presence, message, capsule).
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "couplesync_notifications_total",
			Help: "Notifications fired by the transition notifiers",
		},
		[]string{"kind"},
	)

	// NotificationsDropped counts notifications a sink did not deliver.
	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "couplesync_notifications_dropped_total",
			Help: "Notifications dropped by a sink",
		},
		[]string{"sink", "reason"},
	)

	ReadReceipts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "couplesync_read_receipts_total",
			Help: "Read-receipt patches written by this client",
		},
	)

	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "couplesync_retention_deleted_total",
			Help: "Messages deleted by the retention sweep",
		},
	)

	// StoreErrors counts swallowed store failures by operation.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "couplesync_store_errors_total",
			Help: "Store operations that failed and were not retried",
		},
		[]string{"op"},
	)

	Heartbeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "couplesync_heartbeats_total",
			Help: "Presence heartbeats published",
		},
	)

	// PartnerOnline is 1 while the partner passes the liveness check.
	PartnerOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "couplesync_partner_online",
			Help: "1 when the partner's presence is live",
		},
	)

	LeasesReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "couplesync_leases_reaped_total",
			Help: "Disconnect fallbacks written by the lease reaper",
		},
	)

	UIClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "couplesync_ui_clients",
			Help: "Connected UI websocket clients",
		},
	)

	// CircuitBreakerState: 0=closed, 1=open, 2=half-open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "couplesync_circuit_breaker_state",
			Help: "Circuit breaker state per sink",
		},
		[]string{"name"},
	)
)
