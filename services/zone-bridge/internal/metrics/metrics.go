package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// eventsReceived counts events handed to the bridge.
	// Labels:
	// - kind: "entry", "exit" or "unknown(n)"
	eventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zonebridge",
			Subsystem: "bridge",
			Name:      "events_total",
			Help:      "Location events received by the bridge",
		},
		[]string{"kind"},
	)

	encodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zonebridge",
			Subsystem: "bridge",
			Name:      "encode_failures_total",
			Help:      "Events dropped because they could not be encoded",
		},
		[]string{"reason"},
	)

	publishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zonebridge",
			Subsystem: "mqtt",
			Name:      "publishes_total",
			Help:      "Messages handed to the MQTT client",
		},
		[]string{"topic"},
	)

	// deliveries counts asynchronous publish outcomes.
	// Labels:
	// - result: "success" or the error kind
	deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zonebridge",
			Subsystem: "mqtt",
			Name:      "deliveries_total",
			Help:      "Publish completions reported by the MQTT client",
		},
		[]string{"result"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zonebridge",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Local notification attempts by status",
		},
		[]string{"status"},
	)

	syncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zonebridge",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Background fetch runs by reported status",
		},
		[]string{"state", "status"},
	)

	syncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "zonebridge",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of data synchronization calls",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func EventReceived(kind string) { eventsReceived.WithLabelValues(kind).Inc() }
func EncodeFailed(reason string) { encodeFailures.WithLabelValues(reason).Inc() }
func Published(topic string) { publishes.WithLabelValues(topic).Inc() }
func Delivered(result string) { deliveries.WithLabelValues(result).Inc() }
func Notification(status string) { notifications.WithLabelValues(status).Inc() }
func SyncRun(state, status string) { syncRuns.WithLabelValues(state, status).Inc() }
func SyncDuration(seconds float64) { syncDuration.Observe(seconds) }
