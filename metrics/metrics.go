package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	PoolUnits      prometheus.Gauge
	InflightTasks  prometheus.Gauge
	Executions     *prometheus.HistogramVec
	ExitCodes      *prometheus.CounterVec
	BackendQueries *prometheus.HistogramVec
}

// Global is nil until InitMetrics is called, collectors are skipped in this case.
var Global *Metrics

func InitMetrics(namespace, subsystem string) {
	Global = &Metrics{
		PoolUnits: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pool_units",
			Help:      "Active vm execution units in pools",
		}),
		InflightTasks: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pool_inflight_tasks",
			Help:      "Tasks submitted to pools and not answered yet",
		}),
		Executions: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "executions",
			Help:      "VM executions statistics",
		}, []string{"backend", "status"}),
		ExitCodes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "exit_codes",
			Help:      "Contract exit codes count",
		}, []string{"exit_code"}),
		BackendQueries: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "backend_queries",
			Help:      "Liteserver requests statistics",
		}, []string{"name", "request_type", "status"}),
	}
}
