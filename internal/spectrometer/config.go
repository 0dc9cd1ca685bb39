package spectrometer

import "sync"

// Config holds the spectrometer settings that live outside the IP core.
// It is shared between the acquisition loop and the control plane.
type Config struct {
	mu         sync.RWMutex
	sampleRate float32
}

// NewConfig returns a Config with an unknown (zero) sample rate.
func NewConfig() *Config {
	return &Config{}
}

// SampleRate returns the input sample rate in samples per second.
func (c *Config) SampleRate() float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sampleRate
}

// SetSampleRate stores the input sample rate. No validation is done; a zero
// or negative rate yields a degenerate scale rather than an error.
func (c *Config) SetSampleRate(rate float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sampleRate = rate
}
