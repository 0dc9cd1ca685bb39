package ipcore

import (
	"fmt"

	"github.com/maia-sdr/spectrometerd/internal/errors"
)

// ComponentIPCore identifies errors raised by the IP core layer
const ComponentIPCore = "ipcore"

var (
	// ErrInterruptClosed is returned by Wait after the waiter was closed.
	ErrInterruptClosed = errors.New(errors.NewStd("ipcore: interrupt waiter closed")).
				Component(ComponentIPCore).
				Category(errors.CategoryInterrupt).
				Build()

	// ErrUnsupported is returned by hardware access on platforms without UIO.
	ErrUnsupported = errors.New(errors.NewStd("ipcore: hardware access requires linux")).
			Component(ComponentIPCore).
			Category(errors.CategoryConfiguration).
			Build()

	// ErrBadProductID is returned when the mapped registers do not belong to the IP core.
	ErrBadProductID = errors.New(errors.NewStd("ipcore: wrong product id")).
			Component(ComponentIPCore).
			Category(errors.CategoryHardware).
			Build()
)

// rangeError is the client error returned by setters for out-of-range values.
func rangeError(name string, value, maxValue uint32) error {
	return errors.New(fmt.Errorf("%s %d out of range [0, %d]", name, value, maxValue)).
		Component(ComponentIPCore).
		Category(errors.CategoryValidation).
		Context("field", name).
		Context("value", value).
		Build()
}

func hardwareError(op string, err error) error {
	return errors.New(fmt.Errorf("%s: %w", op, err)).
		Component(ComponentIPCore).
		Category(errors.CategoryHardware).
		Context("operation", op).
		Build()
}
