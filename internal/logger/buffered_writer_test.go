package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedFileWriterFlushAndClose(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.log")
	w, err := NewBufferedFileWriter(path, WithFlushInterval(0), WithBufferSize(1024))
	require.NoError(t, err)

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, w.Buffered())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data, "nothing should reach the file before a flush")

	require.NoError(t, w.Flush())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")

	_, err = w.Write([]byte("late"))
	require.Error(t, err)
	assert.Zero(t, w.Buffered())
}

func TestBufferedFileWriterAutoFlush(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "auto.log")
	w, err := NewBufferedFileWriter(path, WithFlushInterval(10*time.Millisecond))
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	_, err = w.Write([]byte("tick\n"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && string(data) == "tick\n"
	}, time.Second, 5*time.Millisecond)
}
