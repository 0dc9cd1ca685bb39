package mqtt

import (
	"context"
	"math"

	"golang.org/x/time/rate"

	"github.com/maia-sdr/spectrometerd/internal/broadcast"
	"github.com/maia-sdr/spectrometerd/internal/logger"
	"github.com/maia-sdr/spectrometerd/internal/observability/metrics"
)

// Forwarder publishes spectra from the broadcast channel to the broker,
// thinned to at most MaxRate spectra per second. Spectra above the rate or
// arriving while the broker is unreachable are dropped.
type Forwarder struct {
	client  Client
	channel *broadcast.Channel[[]byte]
	topic   string
	limiter *rate.Limiter
	metrics *metrics.StreamMetrics
	log     logger.Logger
}

// NewForwarder creates a forwarder. streamMetrics may be nil.
func NewForwarder(client Client, channel *broadcast.Channel[[]byte], cfg Config, streamMetrics *metrics.StreamMetrics) *Forwarder {
	limit := rate.Inf
	if cfg.MaxRate > 0 && !math.IsInf(cfg.MaxRate, 1) {
		limit = rate.Limit(cfg.MaxRate)
	}
	return &Forwarder{
		client:  client,
		channel: channel,
		topic:   cfg.SpectrumTopic(),
		limiter: rate.NewLimiter(limit, 1),
		metrics: streamMetrics,
		log:     getLogger(),
	}
}

// Run subscribes to the channel and forwards until ctx is done or the
// channel is closed. Publish failures are logged and do not stop it.
func (f *Forwarder) Run(ctx context.Context) error {
	rx := f.channel.Subscribe()
	defer rx.Close()

	f.metrics.ConsumerConnected(metrics.ConsumerMQTT)
	defer f.metrics.ConsumerDisconnected(metrics.ConsumerMQTT)

	f.log.Info("MQTT forwarder started", logger.String("topic", f.topic))
	defer f.log.Info("MQTT forwarder stopped")

	return broadcast.Consume(ctx, rx, func(payload []byte) error {
		f.forward(ctx, payload)
		return nil
	}, func(skipped uint64) {
		f.metrics.Lagged(metrics.ConsumerMQTT, skipped)
	})
}

func (f *Forwarder) forward(ctx context.Context, payload []byte) {
	if !f.limiter.Allow() {
		f.metrics.Dropped(metrics.ConsumerMQTT, "rate_limited")
		return
	}
	if !f.client.IsConnected() {
		f.metrics.Dropped(metrics.ConsumerMQTT, "disconnected")
		return
	}
	if err := f.client.Publish(ctx, f.topic, payload); err != nil {
		f.metrics.Dropped(metrics.ConsumerMQTT, "publish_error")
		if ctx.Err() == nil {
			f.log.Warn("Failed to publish spectrum", logger.Error(err))
		}
		return
	}
	f.metrics.Delivered(metrics.ConsumerMQTT, len(payload))
}
