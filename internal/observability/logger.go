package observability

import "github.com/maia-sdr/spectrometerd/internal/logger"

// getLogger returns the package logger. It is looked up on each use because
// the central logger is installed after package initialization.
func getLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
