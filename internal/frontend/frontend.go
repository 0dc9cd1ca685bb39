// Package frontend reports the input sample rate of the RF front-end that
// feeds the spectrometer.
package frontend

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/maia-sdr/spectrometerd/internal/conf"
	"github.com/maia-sdr/spectrometerd/internal/errors"
)

// ComponentFrontend identifies errors raised by sample rate sources
const ComponentFrontend = "frontend"

// SampleRateSource returns the current input sample rate in samples per second.
type SampleRateSource interface {
	SampleRate(ctx context.Context) (float64, error)
}

// Static is a fixed sample rate.
type Static float64

// SampleRate returns the fixed rate.
func (s Static) SampleRate(context.Context) (float64, error) {
	return float64(s), nil
}

// IIO reads the sample rate from an IIO sysfs attribute such as
// /sys/bus/iio/devices/iio:device0/in_voltage_sampling_frequency.
type IIO struct {
	Path string
}

// SampleRate reads and parses the attribute.
func (s IIO) SampleRate(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, errors.New(err).
			Component(ComponentFrontend).
			Category(errors.CategoryHardware).
			Context("path", s.Path).
			Build()
	}
	rate, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, errors.New(fmt.Errorf("parse sample rate %q: %w", strings.TrimSpace(string(data)), err)).
			Component(ComponentFrontend).
			Category(errors.CategoryHardware).
			Context("path", s.Path).
			Build()
	}
	return rate, nil
}

const sampleRateKey = "sample_rate"

// Cached remembers the last rate read from a source for a short time so that
// frequent status polls do not hit sysfs each time.
type Cached struct {
	source SampleRateSource
	cache  *cache.Cache
}

// NewCached wraps source. A ttl of zero or less disables caching.
func NewCached(source SampleRateSource, ttl time.Duration) *Cached {
	c := &Cached{source: source}
	if ttl > 0 {
		// No janitor: there is a single key and expiry is checked on Get.
		c.cache = cache.New(ttl, 0)
	}
	return c
}

// SampleRate returns the cached rate or reads a fresh one. Errors are not cached.
func (c *Cached) SampleRate(ctx context.Context) (float64, error) {
	if c.cache == nil {
		return c.source.SampleRate(ctx)
	}
	if v, ok := c.cache.Get(sampleRateKey); ok {
		return v.(float64), nil
	}
	rate, err := c.source.SampleRate(ctx)
	if err != nil {
		return 0, err
	}
	c.cache.SetDefault(sampleRateKey, rate)
	return rate, nil
}

// Invalidate forgets the cached rate.
func (c *Cached) Invalidate() {
	if c.cache != nil {
		c.cache.Delete(sampleRateKey)
	}
}

// FromSettings builds the source selected in settings, wrapped in a cache.
// fallback is used in simulation mode where the simulator knows the rate.
func FromSettings(s *conf.FrontendSettings, fallback SampleRateSource) (SampleRateSource, error) {
	var src SampleRateSource
	switch s.Source {
	case conf.SampleRateSourceStatic:
		src = Static(s.SampleRate)
	case conf.SampleRateSourceIIO:
		src = IIO{Path: s.IIOPath}
	default:
		if fallback == nil {
			return nil, errors.Newf("unknown sample rate source %q", s.Source).
				Component(ComponentFrontend).
				Category(errors.CategoryConfiguration).
				Build()
		}
		src = fallback
	}
	if s.CacheTTL <= 0 {
		return src, nil
	}
	return NewCached(src, s.CacheTTL), nil
}
