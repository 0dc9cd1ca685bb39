// config.go: settings struct of spectrometerd and the functions to load and save it.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/maia-sdr/spectrometerd/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Hardware access modes.
const (
	HardwareModeUIO = "uio"
	HardwareModeSim = "sim"
)

// Front-end sample rate sources.
const (
	SampleRateSourceStatic = "static"
	SampleRateSourceIIO    = "iio"
)

// MainSettings contains the general settings.
type MainSettings struct {
	Name string `yaml:"name" mapstructure:"name"` // instance name reported in logs and MQTT
}

// UIOSettings names one UIO map of the IP core.
type UIOSettings struct {
	Device string `yaml:"device" mapstructure:"device"` // e.g. /dev/uio0
	Map    int    `yaml:"map" mapstructure:"map"`       // map index within the device
	Size   int    `yaml:"size" mapstructure:"size"`     // bytes to map, 0 maps the minimum the region needs
}

// HardwareSettings describes how to reach the IP core.
type HardwareSettings struct {
	Mode       string      `yaml:"mode" mapstructure:"mode"`             // uio or sim
	Registers  UIOSettings `yaml:"registers" mapstructure:"registers"`   // register map
	Buffers    UIOSettings `yaml:"buffers" mapstructure:"buffers"`       // spectrometer buffer memory
	Interrupt  string      `yaml:"interrupt" mapstructure:"interrupt"`   // UIO device raising the spectrometer interrupt
	NumBuffers int         `yaml:"num_buffers" mapstructure:"num_buffers"`
	FFTSize    int         `yaml:"fft_size" mapstructure:"fft_size"`
}

// FrontendSettings selects where the input sample rate comes from.
type FrontendSettings struct {
	Source     string        `yaml:"source" mapstructure:"source"`           // static or iio
	SampleRate float64       `yaml:"sample_rate" mapstructure:"sample_rate"` // used by the static source
	IIOPath    string        `yaml:"iio_path" mapstructure:"iio_path"`       // sysfs attribute read by the iio source
	CacheTTL   time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`     // how long a read sample rate is reused
}

// SpectrometerSettings tunes the acquisition loop.
type SpectrometerSettings struct {
	ChannelCapacity int    `yaml:"channel_capacity" mapstructure:"channel_capacity"` // spectra retained for slow subscribers
	DecodeUnlocked  bool   `yaml:"decode_unlocked" mapstructure:"decode_unlocked"`
	Overflow        string `yaml:"overflow" mapstructure:"overflow"`                 // widen, wrap or saturate
	IntegrationsExp *int   `yaml:"integrations_exp" mapstructure:"integrations_exp"` // applied at startup when set
}

// SimulatorSettings configures the simulated IP core used in sim mode.
type SimulatorSettings struct {
	SampleRate    float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
	ToneFrequency float64 `yaml:"tone_frequency" mapstructure:"tone_frequency"`
	ToneAmplitude float64 `yaml:"tone_amplitude" mapstructure:"tone_amplitude"`
	NoiseLevel    float64 `yaml:"noise_level" mapstructure:"noise_level"`
	MaxRate       float64 `yaml:"max_rate" mapstructure:"max_rate"` // upper bound on simulated spectra per second
	Seed          uint64  `yaml:"seed" mapstructure:"seed"`
}

// StreamSettings configures the WebSocket spectrum stream.
type StreamSettings struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// WebServerSettings configures the HTTP control plane.
type WebServerSettings struct {
	Enabled bool           `yaml:"enabled" mapstructure:"enabled"`
	Listen  string         `yaml:"listen" mapstructure:"listen"`
	Stream  StreamSettings `yaml:"stream" mapstructure:"stream"`
}

// PrometheusSettings configures the metrics listener.
type PrometheusSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
	Debug   bool   `yaml:"debug" mapstructure:"debug"` // also serve /debug/pprof
}

// SentrySettings configures error reporting.
type SentrySettings struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	DSN         string  `yaml:"dsn" mapstructure:"dsn"`
	Environment string  `yaml:"environment" mapstructure:"environment"`
	SampleRate  float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// TelemetrySettings groups metrics and error reporting.
type TelemetrySettings struct {
	Prometheus PrometheusSettings `yaml:"prometheus" mapstructure:"prometheus"`
	Sentry     SentrySettings     `yaml:"sentry" mapstructure:"sentry"`
}

// MQTTSettings configures the spectrum forwarder.
type MQTTSettings struct {
	Enabled  bool    `yaml:"enabled" mapstructure:"enabled"`
	Broker   string  `yaml:"broker" mapstructure:"broker"` // e.g. tcp://localhost:1883
	Topic    string  `yaml:"topic" mapstructure:"topic"`   // spectra go to <topic>/spectrum
	ClientID string  `yaml:"client_id" mapstructure:"client_id"`
	Username string  `yaml:"username" mapstructure:"username"`
	Password string  `yaml:"password" mapstructure:"password"`
	QoS      byte    `yaml:"qos" mapstructure:"qos"`
	Retain   bool    `yaml:"retain" mapstructure:"retain"`
	MaxRate  float64 `yaml:"max_rate" mapstructure:"max_rate"` // spectra per second, 0 means unlimited
}

// RecorderSettings configures recording of spectra to a file.
type RecorderSettings struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Path          string        `yaml:"path" mapstructure:"path"`
	RingSize      int           `yaml:"ring_size" mapstructure:"ring_size"` // bytes staged between the stream and the file
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
}

// Settings contains all configuration options of spectrometerd.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Main         MainSettings         `yaml:"main" mapstructure:"main"`
	Logging      logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Hardware     HardwareSettings     `yaml:"hardware" mapstructure:"hardware"`
	Frontend     FrontendSettings     `yaml:"frontend" mapstructure:"frontend"`
	Spectrometer SpectrometerSettings `yaml:"spectrometer" mapstructure:"spectrometer"`
	Simulator    SimulatorSettings    `yaml:"simulator" mapstructure:"simulator"`
	WebServer    WebServerSettings    `yaml:"webserver" mapstructure:"webserver"`
	Telemetry    TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
	MQTT         MQTTSettings         `yaml:"mqtt" mapstructure:"mqtt"`
	Recorder     RecorderSettings     `yaml:"recorder" mapstructure:"recorder"`
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings. configFile may be empty to search the default paths.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults and environment bindings and reads the
// configuration file, creating it from the embedded default when missing.
func initViper(configFile string) error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		// invalid environment values are reported but do not stop startup
		GetLogger().Warn("Environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to dir and reads it.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("Created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig returns the embedded default configuration.
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveSettings writes the current settings back to the config file in use.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	if settingsInstance == nil {
		return fmt.Errorf("settings not loaded")
	}

	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		var err error
		if configPath, err = FindConfigFile(); err != nil {
			return fmt.Errorf("error finding config file: %w", err)
		}
	}

	if err := SaveYAMLConfig(configPath, settingsInstance); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	GetLogger().Info("Settings saved", logger.String("path", configPath))
	return nil
}

// SaveYAMLConfig writes settings to configPath as YAML. The file is written
// to a temporary file first and renamed over the original. Comments and
// ordering of the previous file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	// Rename fails across filesystems; fall back to copy and delete.
	if err := os.Rename(tempFileName, configPath); err != nil {
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}

	return nil
}
