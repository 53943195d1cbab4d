// Package metrics exposes Prometheus metrics for observability.
//
// Exposes primary metrics the pipeline updates during operation:
//   • arcana_trades_ingested_total{source,pair}  – Count of raw trades stored
//   • arcana_bars_emitted_total{bar_type,pair}   – Count of bars emitted
//   • arcana_ingest_window_seconds               – Observed window fetch duration (histogram)
//   • arcana_ingest_retries_total{source}        – Count of retried page fetches
//   • arcana_daemon_gap_seconds                  – Gap between now and the last ingested trade (gauge)
//
// These are registered in init() and served by the HTTP handler started
// in cmd/arcana at /metrics (Prometheus text exposition format), the same
// shape as the teacher bot's metrics.go.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	tradesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcana_trades_ingested_total",
			Help: "Raw trades stored",
		},
		[]string{"source", "pair"},
	)

	barsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcana_bars_emitted_total",
			Help: "Bars emitted by bar type and pair",
		},
		[]string{"bar_type", "pair"},
	)

	ingestWindowSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "arcana_ingest_window_seconds",
			Help:    "Duration of a single FetchWindow call",
			Buckets: prometheus.DefBuckets,
		},
	)

	ingestRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "arcana_ingest_retries_total",
			Help: "Retried page fetches",
		},
		[]string{"source"},
	)

	daemonGapSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "arcana_daemon_gap_seconds",
			Help: "Seconds between now and the last ingested trade, per pair",
		},
		[]string{"pair"},
	)
)

func init() {
	prometheus.MustRegister(tradesIngested, barsEmitted, ingestWindowSeconds, ingestRetries, daemonGapSeconds)
}

func IncTradesIngested(source, pair string, n int) { tradesIngested.WithLabelValues(source, pair).Add(float64(n)) }
func IncBarsEmitted(barType, pair string, n int)   { barsEmitted.WithLabelValues(barType, pair).Add(float64(n)) }
func ObserveIngestWindowSeconds(seconds float64)   { ingestWindowSeconds.Observe(seconds) }
func IncIngestRetries(source string)               { ingestRetries.WithLabelValues(source).Inc() }
func SetDaemonGapSeconds(pair string, seconds float64) { daemonGapSeconds.WithLabelValues(pair).Set(seconds) }
