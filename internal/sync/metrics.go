package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: запуски синхронизации по исходам
	SyncRuns *prometheus.CounterVec

	// Latency: сколько времени занял вызов коннектора
	ConnectorDuration *prometheus.HistogramVec

	// Saturation: состояние Circuit Breaker (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера журнала изменений (backpressure)
	ChangeLogBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		SyncRuns: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "crmflow_sync_runs_total",
			Help: "Total number of sync runs by status.",
		}, []string{"status"}),

		ConnectorDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crmflow_connector_duration_seconds",
			Help:    "Histogram of outbound connector call latencies.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"op", "status"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "crmflow_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"connector_id"}),

		ChangeLogBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "crmflow_changelog_buffer_utilization",
			Help: "Current number of events in change log buffer.",
		}),
	}
}
