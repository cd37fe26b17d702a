// Package metrics holds the Prometheus collectors of the chat service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "namlong",
		Name:      "ws_connections",
		Help:      "Widget websocket connections currently registered.",
	})

	MessagesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "namlong",
		Name:      "chat_messages_created_total",
		Help:      "Chat messages appended to conversations, by role.",
	}, []string{"role"})

	ChatErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "namlong",
		Name:      "chat_errors_total",
		Help:      "Errors reported to widgets, by error code.",
	}, []string{"code"})

	TranscriptDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "namlong",
		Name:      "transcript_dropped_total",
		Help:      "Transcript entries dropped because the archive buffer was full.",
	})

	Uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "namlong",
		Name:      "uploads_total",
		Help:      "Chat image upload requests, by result.",
	}, []string{"result"})

	CleanupDeleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "namlong",
		Name:      "cleanup_deleted_total",
		Help:      "Rows removed by retention cleanup, by kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		WSConnections,
		MessagesCreated,
		ChatErrors,
		TranscriptDropped,
		Uploads,
		CleanupDeleted,
	)
}
