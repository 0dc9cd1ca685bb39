package serve

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maia-sdr/spectrometerd/internal/conf"
	"github.com/maia-sdr/spectrometerd/internal/logger"
	"github.com/maia-sdr/spectrometerd/internal/recorder"
	"github.com/maia-sdr/spectrometerd/internal/testutil"
)

func simSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()

	exp := 4
	s := &conf.Settings{}
	s.Main.Name = "test"
	s.Logging = logger.LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: filepath.Join(dir, "spectrometerd.log"), Level: "debug"},
	}
	s.Hardware = conf.HardwareSettings{Mode: conf.HardwareModeSim, NumBuffers: 4, FFTSize: 64}
	s.Frontend = conf.FrontendSettings{Source: conf.SampleRateSourceIIO, IIOPath: "/nonexistent", CacheTTL: time.Second}
	s.Spectrometer = conf.SpectrometerSettings{ChannelCapacity: 8, DecodeUnlocked: true, Overflow: "widen", IntegrationsExp: &exp}
	s.Simulator = conf.SimulatorSettings{SampleRate: 1e6, ToneFrequency: 1e5, ToneAmplitude: 0.5, NoiseLevel: 1, MaxRate: 200, Seed: 7}
	s.WebServer = conf.WebServerSettings{Enabled: true, Listen: "127.0.0.1:0", Stream: conf.StreamSettings{Enabled: true, WriteTimeout: time.Second}}
	s.Recorder = conf.RecorderSettings{Enabled: true, Path: filepath.Join(dir, "capture.bin"), RingSize: 1 << 16, FlushInterval: 5 * time.Millisecond}
	return s
}

func TestRunSimulatedPipeline(t *testing.T) {
	s := simSettings(t)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, s) }()

	// spectra reach the recorder file through the whole pipeline
	require.Eventually(t, func() bool {
		fi, err := os.Stat(s.Recorder.Path)
		return err == nil && fi.Size() >= int64(recorder.HeaderSize+s.Hardware.FFTSize*4)
	}, testutil.DefaultTestTimeout, 5*time.Millisecond)

	cancel()
	require.NoError(t, testutil.WaitForError(t, done, testutil.DefaultTestTimeout, "serve did not stop"))

	data, err := os.ReadFile(s.Recorder.Path)
	require.NoError(t, err)
	rec, err := recorder.ReadRecord(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, rec.Payload, s.Hardware.FFTSize*4)
}

func TestRunRejectsBadIntegrationsExp(t *testing.T) {
	s := simSettings(t)
	s.Recorder.Enabled = false
	s.WebServer.Enabled = false
	exp := 40
	s.Spectrometer.IntegrationsExp = &exp

	err := Run(t.Context(), s)
	require.Error(t, err)
}

func TestCommandFlags(t *testing.T) {
	t.Parallel()

	cmd := Command(func() (*conf.Settings, error) { return nil, assert.AnError })
	for _, name := range []string{"mode", "listen", "metrics-listen", "integrations-exp"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}

	cmd.SetArgs(nil)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	require.ErrorIs(t, cmd.Execute(), assert.AnError)
}
