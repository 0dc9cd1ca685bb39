package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maia-sdr/spectrometerd/internal/errors"
)

func validSettings() *Settings {
	return &Settings{
		Hardware: HardwareSettings{
			Mode:       HardwareModeUIO,
			Registers:  UIOSettings{Device: "/dev/uio0"},
			Buffers:    UIOSettings{Device: "/dev/uio1"},
			Interrupt:  "/dev/uio0",
			NumBuffers: DefaultNumBuffers,
			FFTSize:    DefaultFFTSize,
		},
		Frontend: FrontendSettings{
			Source:     SampleRateSourceStatic,
			SampleRate: DefaultSampleRate,
			CacheTTL:   time.Second,
		},
		Spectrometer: SpectrometerSettings{ChannelCapacity: 4, Overflow: "widen"},
		WebServer:    WebServerSettings{Enabled: true, Listen: DefaultWebListen},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"sim needs no devices", func(s *Settings) {
			s.Hardware = HardwareSettings{Mode: HardwareModeSim, NumBuffers: 4, FFTSize: 1024}
			s.Simulator = SimulatorSettings{SampleRate: 1e6, MaxRate: 5, ToneAmplitude: 0.5}
		}, ""},
		{"unknown mode", func(s *Settings) { s.Hardware.Mode = "pci" }, "hardware mode"},
		{"missing interrupt", func(s *Settings) { s.Hardware.Interrupt = "" }, "interrupt device"},
		{"too many buffers", func(s *Settings) { s.Hardware.NumBuffers = 9 }, "num_buffers"},
		{"fft size not power of two", func(s *Settings) { s.Hardware.FFTSize = 3000 }, "power of two"},
		{"static without rate", func(s *Settings) { s.Frontend.SampleRate = 0 }, "sample_rate must be positive"},
		{"iio without path", func(s *Settings) { s.Frontend.Source = SampleRateSourceIIO }, "iio_path"},
		{"unknown source", func(s *Settings) { s.Frontend.Source = "adc" }, "frontend source"},
		{"zero capacity", func(s *Settings) { s.Spectrometer.ChannelCapacity = 0 }, "channel_capacity"},
		{"bad overflow", func(s *Settings) { s.Spectrometer.Overflow = "clip" }, "overflow"},
		{"exp out of range", func(s *Settings) { v := 32; s.Spectrometer.IntegrationsExp = &v }, "integrations_exp"},
		{"bad listen", func(s *Settings) { s.WebServer.Listen = "8000" }, "webserver listen"},
		{"sentry without dsn", func(s *Settings) { s.Telemetry.Sentry.Enabled = true }, "sentry dsn"},
		{"mqtt bad scheme", func(s *Settings) {
			s.MQTT = MQTTSettings{Enabled: true, Broker: "http://x", Topic: "t"}
		}, "unsupported broker scheme"},
		{"mqtt bad qos", func(s *Settings) {
			s.MQTT = MQTTSettings{Enabled: true, Broker: "tcp://x:1883", Topic: "t", QoS: 3}
		}, "qos"},
		{"recorder ring too small", func(s *Settings) {
			s.Recorder = RecorderSettings{Enabled: true, Path: "x.bin", RingSize: 100}
		}, "ring_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.NotEmpty(t, ve.Errors)
		})
	}
}
