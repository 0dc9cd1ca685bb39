// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/maia-sdr/spectrometerd/internal/logger"
)

// Defaults shared with code that builds settings without viper.
const (
	DefaultFFTSize         = 4096
	DefaultNumBuffers      = 8
	DefaultChannelCapacity = 16
	DefaultSampleRate      = 61.44e6
	DefaultWebListen       = "0.0.0.0:8000"
	DefaultMetricsListen   = "0.0.0.0:8090"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "spectrometerd")

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	viper.SetDefault("hardware.mode", HardwareModeUIO)
	viper.SetDefault("hardware.registers.device", "/dev/uio0")
	viper.SetDefault("hardware.registers.map", 0)
	viper.SetDefault("hardware.registers.size", 0x1000)
	viper.SetDefault("hardware.buffers.device", "/dev/uio1")
	viper.SetDefault("hardware.buffers.map", 0)
	viper.SetDefault("hardware.buffers.size", 0)
	viper.SetDefault("hardware.interrupt", "/dev/uio0")
	viper.SetDefault("hardware.num_buffers", DefaultNumBuffers)
	viper.SetDefault("hardware.fft_size", DefaultFFTSize)

	viper.SetDefault("frontend.source", SampleRateSourceIIO)
	viper.SetDefault("frontend.sample_rate", DefaultSampleRate)
	viper.SetDefault("frontend.iio_path", "/sys/bus/iio/devices/iio:device0/in_voltage_sampling_frequency")
	viper.SetDefault("frontend.cache_ttl", time.Second)

	viper.SetDefault("spectrometer.channel_capacity", DefaultChannelCapacity)
	viper.SetDefault("spectrometer.decode_unlocked", true)
	viper.SetDefault("spectrometer.overflow", "widen")

	viper.SetDefault("simulator.sample_rate", DefaultSampleRate)
	viper.SetDefault("simulator.tone_frequency", 5e6)
	viper.SetDefault("simulator.tone_amplitude", 0.25)
	viper.SetDefault("simulator.noise_level", 4.0)
	viper.SetDefault("simulator.max_rate", 10.0)
	viper.SetDefault("simulator.seed", 1)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", DefaultWebListen)
	viper.SetDefault("webserver.stream.enabled", true)
	viper.SetDefault("webserver.stream.write_timeout", 5*time.Second)

	viper.SetDefault("telemetry.prometheus.enabled", false)
	viper.SetDefault("telemetry.prometheus.listen", DefaultMetricsListen)
	viper.SetDefault("telemetry.prometheus.debug", false)
	viper.SetDefault("telemetry.sentry.enabled", false)
	viper.SetDefault("telemetry.sentry.dsn", "")
	viper.SetDefault("telemetry.sentry.environment", "production")
	viper.SetDefault("telemetry.sentry.sample_rate", 1.0)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "spectrometerd")
	viper.SetDefault("mqtt.client_id", "")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.qos", 0)
	viper.SetDefault("mqtt.retain", false)
	viper.SetDefault("mqtt.max_rate", 1.0)

	viper.SetDefault("recorder.enabled", false)
	viper.SetDefault("recorder.path", "spectra.bin")
	viper.SetDefault("recorder.ring_size", 1<<20)
	viper.SetDefault("recorder.flush_interval", time.Second)
}
