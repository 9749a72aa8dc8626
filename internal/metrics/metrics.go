package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gesture dispatch metrics
var (
	// GesturesTotal counts shake gestures by dispatch outcome
	GesturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shake_gestures_total",
			Help: "Shake gestures received by dispatch outcome",
		},
		[]string{"outcome"},
	)

	// DispatchDuration tracks how long delegated actions take, in seconds
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shake_dispatch_duration_seconds",
			Help:    "Duration of dispatched shake actions in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"action"},
	)

	// HandlerFaults counts handler errors and panics by action
	HandlerFaults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shake_handler_faults_total",
			Help: "Delegated handler faults by action",
		},
		[]string{"action"},
	)
)

// Wake guard metrics
var (
	// WakeGuardsAcquired counts guards that obtained the wake resource
	WakeGuardsAcquired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shake_wake_guards_acquired_total",
			Help: "Wake guards that obtained the wake resource",
		},
	)

	// WakeGuardsReleased counts wake resources handed back
	WakeGuardsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shake_wake_guards_released_total",
			Help: "Wake resources released by guards",
		},
	)

	// WakeAcquireFailures counts failed wake resource acquisitions
	WakeAcquireFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shake_wake_acquire_failures_total",
			Help: "Wake resource acquisitions that failed and fell back to no guard",
		},
	)
)

// Configuration metrics
var (
	// ConfigRefreshTotal counts configuration refreshes by status (ok/error)
	ConfigRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shake_config_refresh_total",
			Help: "Configuration refreshes by status",
		},
		[]string{"status"},
	)

	// ConfigEnabled mirrors the cached enabled flag (0/1)
	ConfigEnabled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shake_config_enabled",
			Help: "Whether shake gestures are currently enabled (0/1)",
		},
	)

	// ConfigAction mirrors the cached action identifier
	ConfigAction = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shake_config_action",
			Help: "Currently configured shake action identifier",
		},
	)
)

// Report stream metrics
var (
	// WebSocketClients tracks connected report stream clients
	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shake_ws_clients_current",
			Help: "Connected report stream WebSocket clients",
		},
	)

	// WebSocketSlowClientsEvicted counts clients dropped for not keeping up
	WebSocketSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shake_ws_slow_clients_evicted_total",
			Help: "Report stream clients disconnected for being too slow",
		},
	)

	// IPCEventsTotal counts IPC events by type and status
	IPCEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shake_ipc_events_total",
			Help: "IPC events received by type and status",
		},
		[]string{"type", "status"},
	)
)
