package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loadFile resets viper and loads settings from a YAML document.
func loadFile(t *testing.T, doc string) (*Settings, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return Load(path)
}

func TestLoadEmbeddedDefaults(t *testing.T) {
	data, err := getDefaultConfig()
	require.NoError(t, err)

	s, err := loadFile(t, string(data))
	require.NoError(t, err)

	assert.Equal(t, "spectrometerd", s.Main.Name)
	assert.Equal(t, HardwareModeUIO, s.Hardware.Mode)
	assert.Equal(t, DefaultFFTSize, s.Hardware.FFTSize)
	assert.Equal(t, DefaultNumBuffers, s.Hardware.NumBuffers)
	assert.Equal(t, SampleRateSourceIIO, s.Frontend.Source)
	assert.Equal(t, time.Second, s.Frontend.CacheTTL)
	assert.True(t, s.Spectrometer.DecodeUnlocked)
	assert.Equal(t, "widen", s.Spectrometer.Overflow)
	assert.Nil(t, s.Spectrometer.IntegrationsExp)
	assert.Equal(t, DefaultWebListen, s.WebServer.Listen)
	assert.Equal(t, 5*time.Second, s.WebServer.Stream.WriteTimeout)
	assert.False(t, s.MQTT.Enabled)
	require.NotNil(t, s.Logging.Console)
	assert.True(t, s.Logging.Console.Enabled)
	assert.Same(t, s, GetSettings())
}

func TestLoadSparseFileUsesDefaults(t *testing.T) {
	s, err := loadFile(t, "hardware:\n  mode: sim\nspectrometer:\n  integrations_exp: 10\n")
	require.NoError(t, err)

	assert.Equal(t, HardwareModeSim, s.Hardware.Mode)
	require.NotNil(t, s.Spectrometer.IntegrationsExp)
	assert.Equal(t, 10, *s.Spectrometer.IntegrationsExp)
	assert.Equal(t, DefaultChannelCapacity, s.Spectrometer.ChannelCapacity)
	assert.InDelta(t, DefaultSampleRate, s.Simulator.SampleRate, 0)
	assert.Equal(t, time.Second, s.Recorder.FlushInterval)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	_, err := loadFile(t, "hardware:\n  mode: fpga\n  fft_size: 1000\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hardware mode")
	assert.Contains(t, err.Error(), "power of two")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("SPECTROMETERD_HARDWARE_MODE", HardwareModeSim)
	t.Setenv("SPECTROMETERD_MQTT_BROKER", "tcp://broker:1883")

	s, err := loadFile(t, "hardware:\n  mode: uio\n")
	require.NoError(t, err)
	assert.Equal(t, HardwareModeSim, s.Hardware.Mode)
	assert.Equal(t, "tcp://broker:1883", s.MQTT.Broker)
}

func TestCreateDefaultConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := filepath.Join(t.TempDir(), "nested")
	setDefaultConfig()
	require.NoError(t, createDefaultConfig(dir))

	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
	assert.Equal(t, HardwareModeUIO, viper.GetString("hardware.mode"))
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	data, err := getDefaultConfig()
	require.NoError(t, err)
	s, err := loadFile(t, string(data))
	require.NoError(t, err)

	s.Hardware.Mode = HardwareModeSim
	s.MQTT.Topic = "lab/spectrometer"
	exp := 12
	s.Spectrometer.IntegrationsExp = &exp

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveYAMLConfig(path, s))

	reloaded, err := loadFile(t, mustRead(t, path))
	require.NoError(t, err)
	assert.Equal(t, HardwareModeSim, reloaded.Hardware.Mode)
	assert.Equal(t, "lab/spectrometer", reloaded.MQTT.Topic)
	require.NotNil(t, reloaded.Spectrometer.IntegrationsExp)
	assert.Equal(t, 12, *reloaded.Spectrometer.IntegrationsExp)
	assert.Equal(t, s.Frontend.CacheTTL, reloaded.Frontend.CacheTTL)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "config-*.yaml"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temporary file left behind")
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
