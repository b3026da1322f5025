// Package metrics holds the gateway's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GatewayMetrics holds all Prometheus metrics for the gateway.
type GatewayMetrics struct {
	ChatsTotal             *prometheus.CounterVec
	CacheWriteFailures     prometheus.Counter
	SyncRunsTotal          prometheus.Counter
	SyncConversationsTotal prometheus.Counter
	SyncMessagesTotal      prometheus.Counter
	SyncErrorsTotal        prometheus.Counter
}

// New initializes and registers the gateway metrics on the given
// registerer.
func New(reg prometheus.Registerer) *GatewayMetrics {
	factory := promauto.With(reg)
	return &GatewayMetrics{
		ChatsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_gateway",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of chat exchanges served, by tenant.",
		}, []string{"tenant"}),
		CacheWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_gateway",
			Subsystem: "cache",
			Name:      "write_failures_total",
			Help:      "Total number of best-effort cache writes that failed.",
		}),
		SyncRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_gateway",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs (single-user or bulk).",
		}),
		SyncConversationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_gateway",
			Subsystem: "sync",
			Name:      "conversations_total",
			Help:      "Total number of conversations upserted by sync runs.",
		}),
		SyncMessagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_gateway",
			Subsystem: "sync",
			Name:      "messages_total",
			Help:      "Total number of message rows upserted by sync runs.",
		}),
		SyncErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_gateway",
			Subsystem: "sync",
			Name:      "errors_total",
			Help:      "Total number of per-user failures during bulk sync.",
		}),
	}
}
