package spectrometer

import (
	"github.com/maia-sdr/spectrometerd/internal/errors"
)

// ComponentSpectrometer identifies errors raised by the acquisition loop
const ComponentSpectrometer = "spectrometer"

// ErrInterruptSource is wrapped around any failure of the interrupt waiter.
// Such a failure ends Run.
var ErrInterruptSource = errors.New(errors.NewStd("spectrometer: interrupt source failed")).
	Component(ComponentSpectrometer).
	Category(errors.CategoryInterrupt).
	Build()

func interruptError(err error) error {
	return errors.New(errors.Join(ErrInterruptSource, err)).
		Component(ComponentSpectrometer).
		Category(errors.CategoryHardware).
		Priority(errors.PriorityCritical).
		Build()
}
