package spectrometer

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigStartsUnknown(t *testing.T) {
	t.Parallel()
	assert.Zero(t, NewConfig().SampleRate())
}

func TestConfigSetThenGet(t *testing.T) {
	t.Parallel()

	c := NewConfig()
	c.SetSampleRate(61.44e6)
	assert.Equal(t, float32(61.44e6), c.SampleRate())

	done := make(chan float32)
	go func() { done <- c.SampleRate() }()
	assert.Equal(t, float32(61.44e6), <-done)

	c.SetSampleRate(-1)
	assert.Equal(t, float32(-1), c.SampleRate())
}

func TestConfigConcurrentAccess(t *testing.T) {
	t.Parallel()

	c := NewConfig()
	rates := []float32{1e6, 2e6, 30.72e6}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for j := range 1000 {
				if i%2 == 0 {
					c.SetSampleRate(rates[j%len(rates)])
					continue
				}
				assert.Contains(t, append([]float32{0}, rates...), c.SampleRate())
			}
		})
	}
	wg.Wait()
}

func TestScaleScenario(t *testing.T) {
	t.Parallel()
	assert.Equal(t, float32(0.5), Scale(3, 1e6))
	assert.Equal(t, float32(4), Scale(0, 1e6))
}

func TestScaleZeroSampleRate(t *testing.T) {
	t.Parallel()
	assert.True(t, math.IsInf(float64(Scale(10, 0)), 1))
}

func TestScaleMonotonic(t *testing.T) {
	t.Parallel()

	for exp := uint8(0); exp < 31; exp++ {
		assert.Greater(t, Scale(exp, 1e6), Scale(exp+1, 1e6), "exp %d", exp)
	}
	for _, r := range []float32{1, 1e3, 1e6, 30e6} {
		assert.Greater(t, Scale(4, r), Scale(4, r*2), "rate %g", r)
	}
}

func TestOutputRate(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 61.44e6/(4096*16384), OutputRate(61.44e6, 4096, 14), 1e-9)
	assert.InDelta(t, 1000.0, OutputRate(4.096e6, 4096, 0), 1e-9)
}
