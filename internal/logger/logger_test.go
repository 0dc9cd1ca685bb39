package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maia-sdr/spectrometerd/internal/logger"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "line: %s", line)
		out = append(out, entry)
	}
	return out
}

func TestSlogLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		level logger.LogLevel
		want  int
	}{
		{"trace passes everything", logger.LogLevelTrace, 5},
		{"debug drops trace", logger.LogLevelDebug, 4},
		{"info", logger.LogLevelInfo, 3},
		{"error only", logger.LogLevelError, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			log := logger.NewSlogLogger(buf, tt.level, time.UTC)

			log.Trace("t")
			log.Debug("d")
			log.Info("i")
			log.Warn("w")
			log.Error("e")

			assert.Len(t, decodeLines(t, buf), tt.want)
		})
	}
}

func TestTraceLevelIsNamed(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelTrace, time.UTC)
	log.Trace("snapshot", logger.Uint64("last_buffer", 3))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "TRACE", lines[0]["level"])
	assert.InDelta(t, 3, lines[0]["last_buffer"], 0)
}

func TestModuleAndFields(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)
	log := base.Module("spectrometer").Module("loop").With(logger.String("device", "uio0"))

	log.Info("started",
		logger.Int("buffers", 4),
		logger.Float32("scale", 0.5),
		logger.Bool("sim", true),
		logger.Duration("period", 250*time.Millisecond))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "spectrometer.loop", entry["module"])
	assert.Equal(t, "uio0", entry["device"])
	assert.InDelta(t, 4, entry["buffers"], 0)
	assert.InDelta(t, 0.5, entry["scale"], 1e-9)
	assert.Equal(t, true, entry["sim"])
	assert.Equal(t, "250ms", entry["period"])
}

func TestWithDoesNotLeakIntoParent(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	parent := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC).Module("api")
	_ = parent.With(logger.String("client", "a"))
	parent.Info("plain")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "client")
}

func TestWithContextTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	ctx := logger.WithTraceID(context.Background(), "abc-123")
	log.WithContext(ctx).Info("request")
	log.WithContext(context.Background()).Info("no trace")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "abc-123", lines[0]["trace_id"])
	assert.NotContains(t, lines[1], "trace_id")
}

func TestErrorField(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "error", logger.Error(nil).Key)
	assert.Nil(t, logger.Error(nil).Value)
	assert.Equal(t, assert.AnError.Error(), logger.Error(assert.AnError).Value)
}

func TestCentralLoggerModuleLevels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "spectrometerd.log")

	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "info"},
		ModuleLevels: map[string]string{"spectrometer": "trace"},
	})
	require.NoError(t, err)

	cl.Module("spectrometer").Trace("hot path")
	cl.Module("api").Debug("filtered")
	cl.Module("api").Info("kept")
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := decodeLines(t, bytes.NewBuffer(data))
	require.Len(t, lines, 2)
	assert.Equal(t, "hot path", lines[0]["msg"])
	assert.Equal(t, "kept", lines[1]["msg"])
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Mars/Olympus_Mons"})
	require.Error(t, err)

	_, err = logger.NewCentralLogger(nil)
	require.Error(t, err)
}

func TestGlobalFallback(t *testing.T) {
	t.Parallel()

	require.NotNil(t, logger.Global())
	require.NotNil(t, logger.Global().Module("test"))
}
