package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Consumer labels for StreamMetrics.
const (
	ConsumerWebSocket = "websocket"
	ConsumerMQTT      = "mqtt"
	ConsumerRecorder  = "recorder"
)

// StreamMetrics tracks the consumers of the spectrum broadcast.
type StreamMetrics struct {
	active    *prometheus.GaugeVec
	delivered *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	skipped   *prometheus.CounterVec
	bytes     *prometheus.CounterVec
}

// NewStreamMetrics creates and registers the consumer metrics.
func NewStreamMetrics(registry prometheus.Registerer) (*StreamMetrics, error) {
	m := &StreamMetrics{
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "spectrum_consumers_active",
			Help: "Connected spectrum consumers",
		}, []string{"consumer"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spectrum_consumer_delivered_total",
			Help: "Spectra delivered to consumers",
		}, []string{"consumer"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spectrum_consumer_dropped_total",
			Help: "Spectra a consumer discarded",
		}, []string{"consumer", "reason"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spectrum_consumer_lagged_total",
			Help: "Spectra overwritten before a lagging consumer read them",
		}, []string{"consumer"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spectrum_consumer_bytes_total",
			Help: "Payload bytes delivered to consumers",
		}, []string{"consumer"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register stream metrics: %w", err)
	}
	return m, nil
}

// Describe implements prometheus.Collector
func (m *StreamMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.active.Describe(ch)
	m.delivered.Describe(ch)
	m.dropped.Describe(ch)
	m.skipped.Describe(ch)
	m.bytes.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *StreamMetrics) Collect(ch chan<- prometheus.Metric) {
	m.active.Collect(ch)
	m.delivered.Collect(ch)
	m.dropped.Collect(ch)
	m.skipped.Collect(ch)
	m.bytes.Collect(ch)
}

// ConsumerConnected and ConsumerDisconnected maintain the active gauge.
func (m *StreamMetrics) ConsumerConnected(consumer string) {
	if m == nil {
		return
	}
	m.active.WithLabelValues(consumer).Inc()
}

func (m *StreamMetrics) ConsumerDisconnected(consumer string) {
	if m == nil {
		return
	}
	m.active.WithLabelValues(consumer).Dec()
}

// Delivered counts one spectrum of size bytes handed to a consumer.
func (m *StreamMetrics) Delivered(consumer string, size int) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(consumer).Inc()
	m.bytes.WithLabelValues(consumer).Add(float64(size))
}

// Dropped counts one spectrum discarded by a consumer.
func (m *StreamMetrics) Dropped(consumer, reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(consumer, reason).Inc()
}

// Lagged counts spectra a consumer missed because it fell behind.
func (m *StreamMetrics) Lagged(consumer string, skipped uint64) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(consumer).Add(float64(skipped))
}
