package infrastructure

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus instruments for the ETL and analytics paths
type Metrics struct {
	registry *prometheus.Registry

	ETLRuns       *prometheus.CounterVec
	RowsProcessed prometheus.Counter
	RowsInserted  prometheus.Counter
	RowsUpdated   prometheus.Counter
	RowsFailed    prometheus.Counter
	QueryDuration *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// GetMetrics returns the process-wide metrics instance, creating it on first use
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics(prometheus.NewRegistry())
	})
	return metrics
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		ETLRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cwt_etl_runs_total",
			Help: "ETL runs by final status",
		}, []string{"status"}),
		RowsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cwt_etl_rows_processed_total",
			Help: "Source rows read across all ETL runs",
		}),
		RowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cwt_etl_rows_inserted_total",
			Help: "Fact rows inserted across all ETL runs",
		}),
		RowsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cwt_etl_rows_updated_total",
			Help: "Fact rows updated across all ETL runs",
		}),
		RowsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cwt_etl_rows_failed_total",
			Help: "Source rows rejected across all ETL runs",
		}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cwt_analytics_query_duration_seconds",
			Help:    "Analytics engine query durations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		m.ETLRuns,
		m.RowsProcessed,
		m.RowsInserted,
		m.RowsUpdated,
		m.RowsFailed,
		m.QueryDuration,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRun updates the run counters from a completed load
func (m *Metrics) RecordRun(status string, processed, inserted, updated, failed int) {
	m.ETLRuns.WithLabelValues(status).Inc()
	m.RowsProcessed.Add(float64(processed))
	m.RowsInserted.Add(float64(inserted))
	m.RowsUpdated.Add(float64(updated))
	m.RowsFailed.Add(float64(failed))
}
