// Package api provides the HTTP control plane of spectrometerd: spectrometer
// status and settings, and the WebSocket spectrum stream.
package api

import (
	"time"

	"github.com/maia-sdr/spectrometerd/internal/conf"
	"github.com/maia-sdr/spectrometerd/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout        = 30 * time.Second
	DefaultIdleTimeout        = 120 * time.Second
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultStreamWriteTimeout = 5 * time.Second

	// Keepalive on stream connections
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames
	maxMessageSize = 512
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen string // host:port, port 0 picks a free port

	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Spectrum stream
	StreamEnabled      bool
	StreamWriteTimeout time.Duration // a client slower than this is disconnected

	FFTSize int // reported in the status and used for the output rate
	Debug   bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:             conf.DefaultWebListen,
		ReadTimeout:        DefaultReadTimeout,
		IdleTimeout:        DefaultIdleTimeout,
		ShutdownTimeout:    DefaultShutdownTimeout,
		StreamEnabled:      true,
		StreamWriteTimeout: DefaultStreamWriteTimeout,
		FFTSize:            conf.DefaultFFTSize,
	}
}

// ConfigFromSettings creates a server Config from application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings.WebServer.Listen != "" {
		cfg.Listen = settings.WebServer.Listen
	}
	cfg.StreamEnabled = settings.WebServer.Stream.Enabled
	if settings.WebServer.Stream.WriteTimeout > 0 {
		cfg.StreamWriteTimeout = settings.WebServer.Stream.WriteTimeout
	}
	if settings.Hardware.FFTSize > 0 {
		cfg.FFTSize = settings.Hardware.FFTSize
	}
	cfg.Debug = settings.Debug
	return cfg
}
