// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConversationsTotal tracks conversations created.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"kind"},
	)

	// MessagesTotal tracks messages sent.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages sent",
		},
		[]string{"type"},
	)

	// MessageMutationsTotal tracks edits and deletes.
	MessageMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_mutations_total",
			Help: "Total message edits and deletes",
		},
		[]string{"op"},
	)

	// ReactionsTotal tracks reaction upserts and removals.
	ReactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactions_total",
			Help: "Total reaction changes",
		},
		[]string{"op"},
	)

	// TypingUpdatesTotal tracks typing indicator refreshes.
	TypingUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "typing_updates_total",
			Help: "Total typing indicator updates",
		},
		[]string{"state"},
	)

	// LiveConnectionsActive tracks open SSE and WebSocket connections.
	LiveConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "live_connections_active",
			Help: "Number of active live connections",
		},
		[]string{"transport"},
	)

	// EventsPublishedTotal tracks change events sent to NATS.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total change events published",
		},
		[]string{"type", "status"},
	)

	// SummariesTotal tracks LLM conversation summaries.
	SummariesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summaries_total",
			Help: "Total conversation summaries",
		},
		[]string{"provider", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordEvent records the outcome of publishing a change event.
func RecordEvent(eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

// IncrementLiveConnections increments the active connection count.
func IncrementLiveConnections(transport string) {
	LiveConnectionsActive.WithLabelValues(transport).Inc()
}

// DecrementLiveConnections decrements the active connection count.
func DecrementLiveConnections(transport string) {
	LiveConnectionsActive.WithLabelValues(transport).Dec()
}
