// Package metrics exposes ghostwatchd's scan results as Prometheus gauges,
// so a node-level Prometheus scrape can alert on device health without
// needing to tail history files.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ghostwatch/ghostwatchd/internal/device"
)

// Registry owns the gauges updated after every completed scan tick.
type Registry struct {
	registry *prometheus.Registry

	healthScore  *prometheus.GaugeVec
	gdcState     *prometheus.GaugeVec
	decisionUp   *prometheus.GaugeVec
	scanDuration *prometheus.HistogramVec
	devicesTotal prometheus.Gauge
}

// NewRegistry builds a fresh, isolated Prometheus registry (never the
// global default, so multiple Registry instances can coexist in tests).
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		registry: reg,
		healthScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ghostwatchd",
			Name:      "device_health_score",
			Help:      "Current weighted health score for a device, range [-100, 100].",
		}, []string{"identity", "os_name"}),
		gdcState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ghostwatchd",
			Name:      "device_gdc_state",
			Help:      "Ghost Drive Condition state as an ordinal: OK=0 SUSPECT=1 CONFIRMED=2 TERMINAL=3 UNASSESSABLE=4.",
		}, []string{"identity", "os_name"}),
		decisionUp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ghostwatchd",
			Name:      "device_decision_status",
			Help:      "Decision status as an ordinal: OK=0 WARNING=1 CRITICAL=2 EMERGENCY=3.",
		}, []string{"identity", "os_name"}),
		scanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ghostwatchd",
			Name:      "scan_duration_seconds",
			Help:      "Time spent polling a single device with smartctl.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		devicesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ghostwatchd",
			Name:      "devices_monitored_total",
			Help:      "Number of devices currently present in the inventory.",
		}),
	}
}

var gdcOrdinal = map[string]float64{
	"OK": 0, "SUSPECT": 1, "CONFIRMED": 2, "TERMINAL": 3, "UNASSESSABLE": 4,
}

var statusOrdinal = map[device.Status]float64{
	device.StatusOK: 0, device.StatusWarning: 1, device.StatusCritical: 2, device.StatusEmergency: 3,
}

// Observe updates every gauge from one completed DeviceRecord.
func (r *Registry) Observe(rec *device.DeviceRecord, scanSeconds float64) {
	labels := prometheus.Labels{"identity": rec.Identity.String(), "os_name": rec.OSName}
	r.healthScore.With(labels).Set(float64(rec.HealthScore))
	r.gdcState.With(labels).Set(gdcOrdinal[rec.GDCState])
	r.decisionUp.With(labels).Set(statusOrdinal[rec.Decision.Status])
	r.scanDuration.WithLabelValues(rec.Outcome.String()).Observe(scanSeconds)
}

// SetDeviceCount records the current inventory size.
func (r *Registry) SetDeviceCount(n int) {
	r.devicesTotal.Set(float64(n))
}

// Serve starts a blocking HTTP server exposing /metrics on addr. Intended
// to run in its own goroutine; returns only when the listener fails.
func (r *Registry) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	log.Info().Str("addr", addr).Msg("metrics server listening")
	return http.ListenAndServe(addr, mux)
}
