// Package metrics provides the Prometheus collectors of spectrometerd.
package metrics

// Recorder defines a minimal interface for recording metrics, so that
// components can be tested without a registry.
type Recorder interface {
	// RecordOperation records an operation with its status ("success", "error", ...).
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type.
	RecordError(operation, errorType string)
}

// SpectrometerRecorder is what the acquisition loop reports to.
type SpectrometerRecorder interface {
	Recorder

	// ObserveSnapshot records the per-interrupt configuration.
	ObserveSnapshot(sampleRate float64, integrationsExp int, scale float64)

	// SetReceivers records the number of spectrum subscribers.
	SetReceivers(n int)
}

// NoOpRecorder discards everything.
type NoOpRecorder struct{}

func (NoOpRecorder) RecordOperation(string, string)        {}
func (NoOpRecorder) RecordDuration(string, float64)        {}
func (NoOpRecorder) RecordError(string, string)            {}
func (NoOpRecorder) ObserveSnapshot(float64, int, float64) {}
func (NoOpRecorder) SetReceivers(int)                      {}

var _ SpectrometerRecorder = NoOpRecorder{}
