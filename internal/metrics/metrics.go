// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tamzrod/modbus-uplink/internal/sample"
	"github.com/tamzrod/modbus-uplink/internal/uplink"
)

const namespace = "uplink"

// Metrics owns a private registry so tests and embedders do not collide on the default one.
type Metrics struct {
	reg *prometheus.Registry

	reads          *prometheus.CounterVec
	deviceFailures *prometheus.CounterVec
	evictions      prometheus.Counter
	entries        prometheus.Gauge
	payloads       prometheus.Counter
	truncated      prometheus.Counter
	payloadBytes   prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_reads_total",
			Help:      "Sensor reads by result.",
		}, []string{"result"}),
		deviceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_failures_total",
			Help:      "Failed sensor reads per device.",
		}, []string{"device"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_evictions_total",
			Help:      "Devices removed after consecutive failures.",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schedule_entries",
			Help:      "Sensor reads in the current schedule.",
		}),
		payloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_total",
			Help:      "Aggregated payloads emitted.",
		}),
		truncated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_truncated_total",
			Help:      "Payloads cut to the maximum size.",
		}),
		payloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payload_bytes",
			Help:      "Size of emitted payloads.",
			Buckets:   []float64{6, 16, 32, 64, 128, 192, 222, 255},
		}),
	}

	m.reg.MustRegister(
		m.reads,
		m.deviceFailures,
		m.evictions,
		m.entries,
		m.payloads,
		m.truncated,
		m.payloadBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// TrackDevices exposes the registered device count, read on every scrape.
func (m *Metrics) TrackDevices(count func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "registered_devices",
		Help:      "Devices currently in the registry.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ---- scheduler.Observer ----

func (m *Metrics) SampleOK(sample.Decoded) {
	m.reads.WithLabelValues("ok").Inc()
}

func (m *Metrics) SampleFailed(deviceID, _ uint8, _ error, _ int) {
	m.reads.WithLabelValues("failed").Inc()
	m.deviceFailures.WithLabelValues(strconv.Itoa(int(deviceID))).Inc()
}

func (m *Metrics) DeviceEvicted(uint8) { m.evictions.Inc() }

func (m *Metrics) ScheduleRebuilt(entries int) { m.entries.Set(float64(entries)) }

// ---- aggregator.Observer ----

func (m *Metrics) PayloadEmitted(msg uplink.Message, _ int, truncated bool) {
	m.payloads.Inc()
	m.payloadBytes.Observe(float64(len(msg.Payload)))
	if truncated {
		m.truncated.Inc()
	}
}
