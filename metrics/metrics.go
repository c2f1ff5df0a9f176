// Package metrics exposes prometheus instrumentation for the translation
// pipeline. Registration is process-global; the worker decides whether to
// serve the endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	blocksProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "traceir",
			Name:      "blocks_processed_total",
			Help:      "Number of blocks translated to IR.",
		},
	)
	blocksFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "traceir",
			Name:      "blocks_failed_total",
			Help:      "Number of blocks whose translation failed.",
		},
	)
	txsReplayed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "traceir",
			Name:      "txs_replayed_total",
			Help:      "Number of transactions replayed against partial tries.",
		},
	)
	irBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "traceir",
			Name:      "ir_bytes_total",
			Help:      "Total bytes of emitted generation IR.",
		},
	)
	blockSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "traceir",
			Name:      "block_seconds",
			Help:      "Wall time spent translating one block.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(
		blocksProcessed,
		blocksFailed,
		txsReplayed,
		irBytes,
		blockSeconds,
	)
}

// BlockProcessed records one successfully translated block.
func BlockProcessed(txs int, seconds float64) {
	blocksProcessed.Inc()
	txsReplayed.Add(float64(txs))
	blockSeconds.Observe(seconds)
}

// BlockFailed records one failed block translation.
func BlockFailed() {
	blocksFailed.Inc()
}

// IREmitted records the size of one emitted generation unit.
func IREmitted(bytes int) {
	irBytes.Add(float64(bytes))
}

// Handler returns the prometheus scrape handler for the worker's opt-in
// metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
