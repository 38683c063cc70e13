// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry creates a Prometheus registry with the standard collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the Prometheus metrics HTTP handler
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics holds the service's business metrics
type AppMetrics struct {
	HarvestsTotal    *prometheus.CounterVec // labels: status
	RecordsRetrieved prometheus.Counter
	RecordsSkipped   prometheus.Counter
	DeviceExchanges  prometheus.Counter
	DeviceTimeouts   prometheus.Counter
	DeviceErrors     prometheus.Counter
	HarvestDuration  prometheus.Histogram
}

// NewAppMetrics registers and returns the business metrics
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		HarvestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quickcheck_harvests_total",
			Help: "Completed harvest runs by terminal status.",
		}, []string{"status"}),
		RecordsRetrieved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quickcheck_records_retrieved_total",
			Help: "Measurement records retrieved and parsed.",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quickcheck_records_skipped_total",
			Help: "Measurement indexes lost to timeouts or parse failures.",
		}),
		DeviceExchanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quickcheck_device_exchanges_total",
			Help: "Request/reply exchanges with QuickCheck devices.",
		}),
		DeviceTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quickcheck_device_timeouts_total",
			Help: "Device exchanges that hit the reply deadline.",
		}),
		DeviceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quickcheck_device_errors_total",
			Help: "Device exchanges that failed with a transport error.",
		}),
		HarvestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quickcheck_harvest_duration_seconds",
			Help:    "Wall-clock duration of harvest runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
	reg.MustRegister(
		m.HarvestsTotal, m.RecordsRetrieved, m.RecordsSkipped,
		m.DeviceExchanges, m.DeviceTimeouts, m.DeviceErrors, m.HarvestDuration,
	)
	return m
}
