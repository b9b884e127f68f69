// Package metrics exposes the Prometheus collectors updated by the hub and the
// handler that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections is the number of live connections in the registry.
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lanchat_connections",
		Help: "Live WebSocket connections.",
	})

	// Groups is the number of resident groups, empty ones included.
	Groups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lanchat_groups",
		Help: "Resident chat groups.",
	})

	// RoutedMessages counts routing operations by scope and kind (text or file).
	RoutedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lanchat_routed_messages_total",
		Help: "Messages routed, by scope and kind.",
	}, []string{"scope", "kind"})

	// Deliveries counts frames handed to the transport, by outbound event.
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lanchat_deliveries_total",
		Help: "Outbound frames handed to connections, by event type.",
	}, []string{"event"})

	// SkippedRecipients counts audience members that could not be reached.
	SkippedRecipients = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lanchat_skipped_recipients_total",
		Help: "Audience members skipped because they were no longer live.",
	}, []string{"scope"})

	// Uploads counts upload attempts by result.
	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lanchat_uploads_total",
		Help: "File uploads, by result.",
	}, []string{"result"})
)

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
