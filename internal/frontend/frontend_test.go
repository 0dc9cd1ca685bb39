package frontend

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maia-sdr/spectrometerd/internal/conf"
	"github.com/maia-sdr/spectrometerd/internal/errors"
)

type countingSource struct {
	rate  float64
	calls atomic.Int32
	err   error
}

func (c *countingSource) SampleRate(context.Context) (float64, error) {
	c.calls.Add(1)
	return c.rate, c.err
}

func TestStatic(t *testing.T) {
	t.Parallel()
	rate, err := Static(30.72e6).SampleRate(t.Context())
	require.NoError(t, err)
	assert.InDelta(t, 30.72e6, rate, 0)
}

func TestIIO(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "in_voltage_sampling_frequency")
	require.NoError(t, os.WriteFile(path, []byte("61440000\n"), 0o600))

	rate, err := IIO{Path: path}.SampleRate(t.Context())
	require.NoError(t, err)
	assert.InDelta(t, 61.44e6, rate, 0)

	require.NoError(t, os.WriteFile(path, []byte("fast\n"), 0o600))
	_, err = IIO{Path: path}.SampleRate(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryHardware))

	_, err = IIO{Path: filepath.Join(dir, "missing")}.SampleRate(t.Context())
	require.Error(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = IIO{Path: path}.SampleRate(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCachedReusesValue(t *testing.T) {
	t.Parallel()

	src := &countingSource{rate: 1e6}
	c := NewCached(src, time.Hour)

	for range 5 {
		rate, err := c.SampleRate(t.Context())
		require.NoError(t, err)
		assert.InDelta(t, 1e6, rate, 0)
	}
	assert.EqualValues(t, 1, src.calls.Load())

	c.Invalidate()
	_, err := c.SampleRate(t.Context())
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestCachedExpires(t *testing.T) {
	t.Parallel()

	src := &countingSource{rate: 1e6}
	c := NewCached(src, 10*time.Millisecond)

	_, err := c.SampleRate(t.Context())
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = c.SampleRate(t.Context())
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestCachedDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	src := &countingSource{err: assert.AnError}
	c := NewCached(src, time.Hour)

	_, err := c.SampleRate(t.Context())
	require.ErrorIs(t, err, assert.AnError)
	_, err = c.SampleRate(t.Context())
	require.ErrorIs(t, err, assert.AnError)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestCachedZeroTTL(t *testing.T) {
	t.Parallel()

	src := &countingSource{rate: 1}
	c := NewCached(src, 0)
	_, _ = c.SampleRate(t.Context())
	_, _ = c.SampleRate(t.Context())
	c.Invalidate()
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestFromSettings(t *testing.T) {
	t.Parallel()

	src, err := FromSettings(&conf.FrontendSettings{Source: conf.SampleRateSourceStatic, SampleRate: 2e6}, nil)
	require.NoError(t, err)
	assert.Equal(t, Static(2e6), src)

	src, err = FromSettings(&conf.FrontendSettings{Source: conf.SampleRateSourceIIO, IIOPath: "/x", CacheTTL: time.Second}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Cached{}, src)

	fallback := Static(5)
	src, err = FromSettings(&conf.FrontendSettings{}, fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, src)

	_, err = FromSettings(&conf.FrontendSettings{Source: "adc"}, nil)
	require.Error(t, err)
}
