// mqtt.go: Package mqtt forwards published spectra to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/maia-sdr/spectrometerd/internal/conf"
	"github.com/maia-sdr/spectrometerd/internal/logger"
)

// ComponentMQTT identifies errors raised by the MQTT client
const ComponentMQTT = "mqtt"

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic. It returns an error if the client is
	// not connected or the broker does not acknowledge in time.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string  // base topic, spectra go to <Topic>/spectrum
	QoS      byte    // QoS used for spectra
	Retain   bool    // true to retain messages at the broker
	MaxRate  float64 // spectra per second forwarded, 0 for no limit

	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
	MaxReconnect      time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
		MaxReconnect:      5 * time.Minute,
	}
}

// ConfigFromSettings builds a Config from the application settings. The
// instance name is used as client id when none is configured.
func ConfigFromSettings(settings *conf.Settings) Config {
	cfg := DefaultConfig()
	m := &settings.MQTT
	cfg.Broker = m.Broker
	cfg.ClientID = m.ClientID
	if cfg.ClientID == "" {
		cfg.ClientID = settings.Main.Name
	}
	cfg.Username = m.Username
	cfg.Password = m.Password
	cfg.Topic = m.Topic
	cfg.QoS = m.QoS
	cfg.Retain = m.Retain
	cfg.MaxRate = m.MaxRate
	return cfg
}

// SpectrumTopic returns the topic spectra are published to.
func (c Config) SpectrumTopic() string {
	return c.Topic + "/spectrum"
}

// StatusTopic returns the topic carrying the online/offline state.
func (c Config) StatusTopic() string {
	return c.Topic + "/status"
}

func getLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
