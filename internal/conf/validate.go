// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"strings"

	"github.com/maia-sdr/spectrometerd/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) []string{
		validateHardwareSettings,
		validateFrontendSettings,
		validateSpectrometerSettings,
		validateSimulatorSettings,
		validateListeners,
		validateMQTTSettings,
		validateRecorderSettings,
	}
	for _, v := range validators {
		ve.Errors = append(ve.Errors, v(settings)...)
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryValidation).
			Context("error_count", len(ve.Errors)).
			Build()
	}
	return nil
}

func validateHardwareSettings(s *Settings) []string {
	var errs []string
	hw := &s.Hardware

	switch hw.Mode {
	case HardwareModeUIO:
		if hw.Registers.Device == "" {
			errs = append(errs, "hardware registers device is required in uio mode")
		}
		if hw.Buffers.Device == "" {
			errs = append(errs, "hardware buffers device is required in uio mode")
		}
		if hw.Interrupt == "" {
			errs = append(errs, "hardware interrupt device is required in uio mode")
		}
	case HardwareModeSim:
	default:
		errs = append(errs, fmt.Sprintf("hardware mode must be %q or %q, got %q", HardwareModeUIO, HardwareModeSim, hw.Mode))
	}

	// last_buffer is a 3-bit field
	if hw.NumBuffers < 2 || hw.NumBuffers > 8 {
		errs = append(errs, fmt.Sprintf("hardware num_buffers must be between 2 and 8, got %d", hw.NumBuffers))
	}
	if hw.FFTSize < 2 || hw.FFTSize&(hw.FFTSize-1) != 0 {
		errs = append(errs, fmt.Sprintf("hardware fft_size must be a power of two, got %d", hw.FFTSize))
	}
	return errs
}

func validateFrontendSettings(s *Settings) []string {
	var errs []string
	fe := &s.Frontend

	switch fe.Source {
	case SampleRateSourceStatic:
		if fe.SampleRate <= 0 {
			errs = append(errs, "frontend sample_rate must be positive for the static source")
		}
	case SampleRateSourceIIO:
		if fe.IIOPath == "" {
			errs = append(errs, "frontend iio_path is required for the iio source")
		}
	default:
		errs = append(errs, fmt.Sprintf("frontend source must be %q or %q, got %q", SampleRateSourceStatic, SampleRateSourceIIO, fe.Source))
	}
	if fe.CacheTTL < 0 {
		errs = append(errs, "frontend cache_ttl must not be negative")
	}
	return errs
}

func validateSpectrometerSettings(s *Settings) []string {
	var errs []string
	sp := &s.Spectrometer

	if sp.ChannelCapacity < 1 {
		errs = append(errs, fmt.Sprintf("spectrometer channel_capacity must be at least 1, got %d", sp.ChannelCapacity))
	}
	switch strings.ToLower(sp.Overflow) {
	case "", "widen", "wrap", "saturate":
	default:
		errs = append(errs, fmt.Sprintf("spectrometer overflow must be widen, wrap or saturate, got %q", sp.Overflow))
	}
	if sp.IntegrationsExp != nil && (*sp.IntegrationsExp < 0 || *sp.IntegrationsExp > 31) {
		errs = append(errs, fmt.Sprintf("spectrometer integrations_exp must be between 0 and 31, got %d", *sp.IntegrationsExp))
	}
	return errs
}

func validateSimulatorSettings(s *Settings) []string {
	if s.Hardware.Mode != HardwareModeSim {
		return nil
	}
	var errs []string
	if s.Simulator.SampleRate <= 0 {
		errs = append(errs, "simulator sample_rate must be positive")
	}
	if s.Simulator.MaxRate <= 0 {
		errs = append(errs, "simulator max_rate must be positive")
	}
	if s.Simulator.ToneAmplitude < 0 || s.Simulator.ToneAmplitude > 1 {
		errs = append(errs, "simulator tone_amplitude must be between 0 and 1")
	}
	return errs
}

func validateListeners(s *Settings) []string {
	var errs []string
	if s.WebServer.Enabled {
		if _, _, err := net.SplitHostPort(s.WebServer.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("webserver listen address %q is invalid: %v", s.WebServer.Listen, err))
		}
	}
	if s.Telemetry.Prometheus.Enabled {
		if _, _, err := net.SplitHostPort(s.Telemetry.Prometheus.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("prometheus listen address %q is invalid: %v", s.Telemetry.Prometheus.Listen, err))
		}
	}
	if s.Telemetry.Sentry.Enabled && s.Telemetry.Sentry.DSN == "" {
		errs = append(errs, "sentry dsn is required when sentry is enabled")
	}
	return errs
}

func validateMQTTSettings(s *Settings) []string {
	if !s.MQTT.Enabled {
		return nil
	}
	var errs []string
	if s.MQTT.Broker == "" {
		errs = append(errs, "MQTT broker URL is required when MQTT is enabled")
	} else if err := validateEnvBrokerURL(s.MQTT.Broker); err != nil {
		errs = append(errs, fmt.Sprintf("MQTT broker: %v", err))
	}
	if s.MQTT.Topic == "" {
		errs = append(errs, "MQTT topic is required when MQTT is enabled")
	}
	if s.MQTT.QoS > 2 {
		errs = append(errs, fmt.Sprintf("MQTT qos must be 0, 1 or 2, got %d", s.MQTT.QoS))
	}
	if s.MQTT.MaxRate < 0 {
		errs = append(errs, "MQTT max_rate must not be negative")
	}
	return errs
}

func validateRecorderSettings(s *Settings) []string {
	if !s.Recorder.Enabled {
		return nil
	}
	var errs []string
	if s.Recorder.Path == "" {
		errs = append(errs, "recorder path is required when the recorder is enabled")
	}
	minRing := s.Hardware.FFTSize * 4
	if s.Recorder.RingSize < minRing {
		errs = append(errs, fmt.Sprintf("recorder ring_size must hold at least one spectrum (%d bytes), got %d", minRing, s.Recorder.RingSize))
	}
	return errs
}
