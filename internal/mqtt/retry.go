package mqtt

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/maia-sdr/spectrometerd/internal/logger"
)

// ConnectWithRetry calls c.Connect until it succeeds or ctx is done, backing
// off exponentially from initial up to maxInterval between attempts. It
// returns ctx.Err() when it gives up.
func ConnectWithRetry(ctx context.Context, c Client, initial, maxInterval time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0

	log := getLogger()
	return backoff.RetryNotify(func() error {
		return c.Connect(ctx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		log.Warn("MQTT connection failed, retrying",
			logger.Error(err),
			logger.Duration("retry_in", next))
	})
}
