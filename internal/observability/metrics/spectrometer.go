package metrics

import (
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

// SpectrometerMetrics contains the metrics of the acquisition loop.
type SpectrometerMetrics struct {
	operationsTotal *prometheus.CounterVec
	durations       *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	sampleRate      prometheus.Gauge
	integrationsExp prometheus.Gauge
	scale           prometheus.Gauge
	receivers       prometheus.Gauge
}

// NewSpectrometerMetrics creates and registers the acquisition loop metrics.
func NewSpectrometerMetrics(registry prometheus.Registerer) (*SpectrometerMetrics, error) {
	m := &SpectrometerMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register spectrometer metrics: %w", err)
	}
	return m, nil
}

func (m *SpectrometerMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spectrometer_operations_total",
		Help: "Spectrometer operations by type and status",
	}, []string{"operation", "status"})

	m.durations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spectrometer_operation_duration_seconds",
		Help:    "Duration of spectrometer operations",
		Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
	}, []string{"operation"})

	m.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spectrometer_errors_total",
		Help: "Spectrometer errors by operation and type",
	}, []string{"operation", "error_type"})

	m.sampleRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrometer_sample_rate_hz",
		Help: "Input sample rate used for the last spectrum",
	})

	m.integrationsExp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrometer_integrations_exponent",
		Help: "Integrations exponent read at the last interrupt",
	})

	m.scale = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrometer_scale",
		Help: "Scale factor applied at the last interrupt, +Inf while the sample rate is unknown",
	})

	m.receivers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrometer_receivers",
		Help: "Number of spectrum subscribers",
	})
}

// Describe implements prometheus.Collector
func (m *SpectrometerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.operationsTotal.Describe(ch)
	m.durations.Describe(ch)
	m.errorsTotal.Describe(ch)
	m.sampleRate.Describe(ch)
	m.integrationsExp.Describe(ch)
	m.scale.Describe(ch)
	m.receivers.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *SpectrometerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.operationsTotal.Collect(ch)
	m.durations.Collect(ch)
	m.errorsTotal.Collect(ch)
	m.sampleRate.Collect(ch)
	m.integrationsExp.Collect(ch)
	m.scale.Collect(ch)
	m.receivers.Collect(ch)
}

func (m *SpectrometerMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

func (m *SpectrometerMetrics) RecordDuration(operation string, seconds float64) {
	m.durations.WithLabelValues(operation).Observe(seconds)
}

func (m *SpectrometerMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

func (m *SpectrometerMetrics) ObserveSnapshot(sampleRate float64, integrationsExp int, scale float64) {
	m.sampleRate.Set(sampleRate)
	m.integrationsExp.Set(float64(integrationsExp))
	if math.IsNaN(scale) {
		scale = math.Inf(1)
	}
	m.scale.Set(scale)
}

func (m *SpectrometerMetrics) SetReceivers(n int) {
	m.receivers.Set(float64(n))
}

var _ SpectrometerRecorder = (*SpectrometerMetrics)(nil)
