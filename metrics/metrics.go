// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics exposes the service's prometheus collectors on a
// dedicated registry so the HTTP handler serves only our namespace.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "solwatch"

var (
	registry = prometheus.NewRegistry()

	BlocksScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_scanned_total",
		Help:      "Slots fetched and classified.",
	})
	SlotsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slots_skipped_total",
		Help:      "Slots the chain reported as skipped or pruned.",
	})
	SlotErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slot_errors_total",
		Help:      "Slot fetches that failed and will be retried.",
	})
	TransactionsMatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_matched_total",
		Help:      "Transfers touching a watched address, by type.",
	}, []string{"type"})
	PublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_failures_total",
		Help:      "Kafka publishes that returned an error.",
	})
	StoreDuplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_duplicates_total",
		Help:      "Transactions dropped because their signature was already stored.",
	})
	NotifyDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notify_dropped_total",
		Help:      "WebSocket notifications dropped on full client queues.",
	})

	ChainHead = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chain_head",
		Help:      "Latest slot reported by the RPC node.",
	})
	ScanCursor = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scan_cursor",
		Help:      "Highest slot below which every slot is scanned or skipped.",
	})
	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections",
		Help:      "Open WebSocket connections.",
	})
)

func init() {
	registry.MustRegister(
		BlocksScanned,
		SlotsSkipped,
		SlotErrors,
		TransactionsMatched,
		PublishFailures,
		StoreDuplicates,
		NotifyDropped,
		ChainHead,
		ScanCursor,
		WSConnections,
	)
}

// Handler serves the registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
