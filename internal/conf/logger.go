// Package conf provides configuration management for spectrometerd.
package conf

import "github.com/maia-sdr/spectrometerd/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// The logger is fetched from the global logger each time because settings
// are loaded before the central logger exists.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
