// env.go - Environment variable configuration and validation for spectrometerd
package conf

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by spectrometerd.
const EnvPrefix = "SPECTROMETERD"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "SPECTROMETERD_DEBUG", validateEnvBool},
		{"logging.default_level", "SPECTROMETERD_LOG_LEVEL", validateEnvLogLevel},

		// Hardware
		{"hardware.mode", "SPECTROMETERD_HARDWARE_MODE", validateEnvOneOf(HardwareModeUIO, HardwareModeSim)},
		{"hardware.interrupt", "SPECTROMETERD_HARDWARE_INTERRUPT", nil},
		{"hardware.fft_size", "SPECTROMETERD_HARDWARE_FFT_SIZE", validateEnvPositiveInt},

		// Front-end
		{"frontend.source", "SPECTROMETERD_FRONTEND_SOURCE", validateEnvOneOf(SampleRateSourceStatic, SampleRateSourceIIO)},
		{"frontend.sample_rate", "SPECTROMETERD_FRONTEND_SAMPLE_RATE", validateEnvPositiveFloat},
		{"frontend.iio_path", "SPECTROMETERD_FRONTEND_IIO_PATH", nil},

		// Spectrometer
		{"spectrometer.overflow", "SPECTROMETERD_SPECTROMETER_OVERFLOW", validateEnvOneOf("widen", "wrap", "saturate")},
		{"spectrometer.decode_unlocked", "SPECTROMETERD_SPECTROMETER_DECODE_UNLOCKED", validateEnvBool},

		// Listeners
		{"webserver.listen", "SPECTROMETERD_WEBSERVER_LISTEN", validateEnvListen},
		{"telemetry.prometheus.enabled", "SPECTROMETERD_PROMETHEUS_ENABLED", validateEnvBool},
		{"telemetry.prometheus.listen", "SPECTROMETERD_PROMETHEUS_LISTEN", validateEnvListen},
		{"telemetry.sentry.enabled", "SPECTROMETERD_SENTRY_ENABLED", validateEnvBool},
		{"telemetry.sentry.dsn", "SPECTROMETERD_SENTRY_DSN", nil},

		// MQTT
		{"mqtt.enabled", "SPECTROMETERD_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "SPECTROMETERD_MQTT_BROKER", validateEnvBrokerURL},
		{"mqtt.username", "SPECTROMETERD_MQTT_USERNAME", nil},
		{"mqtt.password", "SPECTROMETERD_MQTT_PASSWORD", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f, TRUE/FALSE, T/F", value)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	return validateEnvOneOf("trace", "debug", "info", "warn", "error")(strings.ToLower(value))
}

func validateEnvOneOf(valid ...string) func(string) error {
	return func(value string) error {
		if slices.Contains(valid, value) {
			return nil
		}
		return fmt.Errorf("must be one of: %s", strings.Join(valid, ", "))
	}
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	return nil
}

func validateEnvPositiveFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %w", err)
	}
	if f <= 0 {
		return fmt.Errorf("must be positive, got %g", f)
	}
	return nil
}

func validateEnvListen(value string) error {
	if _, _, err := net.SplitHostPort(value); err != nil {
		return fmt.Errorf("listen address must be host:port: %w", err)
	}
	return nil
}

func validateEnvBrokerURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
		return nil
	default:
		return fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}
