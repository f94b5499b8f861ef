// Package metrics exposes the engine's observable state as Prometheus
// gauges/counters/histograms, scraped on the internal mux (§"Ambient
// Stack"). Every gauge here is recomputed from the same values published
// on the monitoring_metrics WebSocket channel, so the two views never
// drift apart.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EngineHealthScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bioengine_health_score",
		Help: "Computed engine health score in [0,1], 1 being fully healthy",
	})

	EngineCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bioengine_process_cpu_percent",
		Help: "Process CPU usage percent as reported by the monitoring ticker",
	})

	EngineMemoryRSSBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bioengine_process_memory_rss_bytes",
		Help: "Process resident set size in bytes",
	})

	BusClientCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bioengine_bus_client_count",
		Help: "Number of currently registered WebSocket Bus clients",
	})

	BusSlowConsumerDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bioengine_bus_slow_consumer_disconnects_total",
		Help: "Total clients force-disconnected for exceeding the slow-consumer lag threshold",
	})

	SampleRateHz = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bioengine_sample_rate_hz",
		Help: "Observed inbound sample rate per sensor",
	}, []string{"sensor"})

	RingBufferDroppedTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bioengine_ringbuffer_dropped_total",
		Help: "Cumulative samples overwritten due to ring buffer overflow, per sensor",
	}, []string{"sensor"})

	PipelineTickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bioengine_pipeline_tick_duration_seconds",
		Help:    "DSP pipeline tick latency by pipeline name",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"pipeline"})

	PipelineStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bioengine_pipeline_status",
		Help: "DSP pipeline health (0=ok, 1=degraded) by pipeline name",
	}, []string{"pipeline"})

	// HTTP metrics, unchanged shape from the teacher's own server instrumentation.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by method, path, and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by method, path, and status",
	}, []string{"method", "path", "status"})
)

// PipelineStatusCode maps a dsp.Status string to the gauge's numeric
// convention (0=ok, 1=degraded) without importing the dsp package, which
// would create a metrics<->dsp import cycle once dsp starts reporting
// tick durations through this package.
func PipelineStatusCode(status string) float64 {
	if status == "degraded" {
		return 1
	}
	return 0
}
