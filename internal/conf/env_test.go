package conf

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvValidators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		fn    func(string) error
		value string
		ok    bool
	}{
		{"bool true", validateEnvBool, "true", true},
		{"bool junk", validateEnvBool, "yes", false},
		{"level upper", validateEnvLogLevel, "TRACE", true},
		{"level unknown", validateEnvLogLevel, "verbose", false},
		{"positive int", validateEnvPositiveInt, "4096", true},
		{"zero int", validateEnvPositiveInt, "0", false},
		{"positive float", validateEnvPositiveFloat, "61.44e6", true},
		{"negative float", validateEnvPositiveFloat, "-1", false},
		{"listen", validateEnvListen, ":8000", true},
		{"listen without port", validateEnvListen, "localhost", false},
		{"tcp broker", validateEnvBrokerURL, "tcp://localhost:1883", true},
		{"wss broker", validateEnvBrokerURL, "wss://example.org/mqtt", true},
		{"http broker", validateEnvBrokerURL, "http://localhost", false},
		{"one of", validateEnvOneOf("a", "b"), "b", true},
		{"not one of", validateEnvOneOf("a", "b"), "c", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.fn(tt.value)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestBindEnvVarsReportsInvalidValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("SPECTROMETERD_HARDWARE_MODE", "fpga")
	t.Setenv("SPECTROMETERD_HARDWARE_FFT_SIZE", "2048")

	err := configureEnvironmentVariables()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPECTROMETERD_HARDWARE_MODE")
	assert.NotContains(t, err.Error(), "SPECTROMETERD_HARDWARE_FFT_SIZE")

	// bound even when invalid; validation happens on the settings
	assert.Equal(t, "fpga", viper.GetString("hardware.mode"))
	assert.Equal(t, 2048, viper.GetInt("hardware.fft_size"))
}

func TestEnvBindingsUsePrefix(t *testing.T) {
	t.Parallel()
	for _, b := range getEnvBindings() {
		assert.Regexp(t, "^"+EnvPrefix+"_[A-Z0-9_]+$", b.EnvVar)
	}
}
