// Package metrics exposes the Prometheus counters, gauges and histograms
// the ledger and its CLI driver emit. Grounded on the shape of the teacher
// repo's monitoring package: a struct of promauto-registered collectors
// built once and handed to the rest of the program.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ledger holds every collector the ledger core and CLI touch.
type Ledger struct {
	OpsTotal        *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	StorageLatency  *prometheus.HistogramVec
	UnspentUTXOs    prometheus.Gauge
	RowsProcessed   prometheus.Counter
	RowsSkipped     prometheus.Counter
	DisputeShortfall prometheus.Counter
}

// NewLedger registers and returns the ledger metric set against the default
// Prometheus registry. Call once per process.
func NewLedger() *Ledger {
	return &Ledger{
		OpsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Number of ledger operations processed, by kind.",
		}, []string{"op"}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_errors_total",
			Help: "Number of CSV rows rejected by the ledger, by operation type.",
		}, []string{"kind"}),

		StorageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_storage_latency_seconds",
			Help:    "Latency of storage backend calls, by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "method"}),

		UnspentUTXOs: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_unspent_utxos",
			Help: "Current count of unspent UTXOs tracked by the ledger.",
		}),

		RowsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_csv_rows_processed_total",
			Help: "CSV input rows applied successfully.",
		}),

		RowsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_csv_rows_skipped_total",
			Help: "CSV input rows rejected by parsing or ledger validation.",
		}),

		DisputeShortfall: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ledger_dispute_shortfall_total",
			Help: "Number of disputes whose held amount exceeded the disputed account's available balance.",
		}),
	}
}

// Handler returns the standard promhttp handler for a /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
