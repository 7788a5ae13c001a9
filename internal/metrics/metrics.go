// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Feed connection state and connect/reconnect counts
//   - Inbound message and decode-failure rates
//   - Snapshot/update application counts
//   - History recorder batch sizes and errors
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesTotal counts inbound feed messages, valid or not.
	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddsview_feed_messages_total",
		Help: "Inbound WebSocket messages received from the odds feed.",
	})

	// DecodeFailuresTotal counts dropped malformed messages.
	DecodeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddsview_feed_decode_failures_total",
		Help: "Inbound messages dropped because they failed to decode.",
	})

	// ConnectsTotal counts successful connection establishments.
	ConnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddsview_feed_connects_total",
		Help: "Successful WebSocket connects to the odds feed.",
	})

	// ReconnectsTotal counts scheduled reconnect attempts.
	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddsview_feed_reconnects_total",
		Help: "Reconnect attempts scheduled after an unclean close.",
	})

	// SnapshotsApplied counts full snapshot replacements in the store.
	SnapshotsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddsview_store_snapshots_applied_total",
		Help: "Snapshot messages applied to the state store.",
	})

	// UpdatesApplied counts incremental updates merged into the store.
	UpdatesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddsview_store_updates_applied_total",
		Help: "Update messages applied to the state store.",
	})

	// HistoryInserts counts rows written by the history recorder.
	HistoryInserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddsview_history_inserts_total",
		Help: "Odds tick rows written to the history database.",
	})

	// HistoryErrors counts failed history batch inserts.
	HistoryErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddsview_history_errors_total",
		Help: "Failed history batch inserts.",
	})

	connectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "oddsview_feed_connection_state",
		Help: "Feed connection state (1 for the active state, 0 otherwise).",
	}, []string{"state"})
)

// SetConnectionState marks one state active and all others inactive.
func SetConnectionState(state string) {
	for _, s := range []string{"disconnected", "connecting", "connected"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		connectionState.WithLabelValues(s).Set(v)
	}
}
