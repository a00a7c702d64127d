package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/gogate/config"
)

type failingWriter struct{}

func (fw *failingWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func TestTUIMode_BuffersUntilPaneIsReady(t *testing.T) {
	require.NoError(t, Init(true, config.LogConfig{Level: "DEBUG", Format: "text"}))

	slog.Info("Initial log")

	var pane bytes.Buffer
	require.NoError(t, SetOutput(&pane))
	assert.Contains(t, pane.String(), "Initial log")

	slog.Info("Live log")
	assert.Contains(t, pane.String(), "Live log")

	BufferOutput()
	slog.Info("Buffered log")
	assert.NotContains(t, pane.String(), "Buffered log")

	var next bytes.Buffer
	require.NoError(t, SetOutput(&next))
	assert.Contains(t, next.String(), "Buffered log")
	require.NoError(t, Close())
}

func TestHWMode_FileLogging(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "gate.log")
	require.NoError(t, Init(false, config.LogConfig{Level: "INFO", Format: "json", File: logFile}))

	slog.Info("chevron locked", "channel", 4)
	slog.Debug("not written")
	require.NoError(t, Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"msg":"chevron locked"`)
	assert.Contains(t, string(content), `"channel":4`)
	assert.NotContains(t, string(content), "not written")
}

func TestStderrFallback(t *testing.T) {
	require.NoError(t, Init(true, config.LogConfig{Level: "DEBUG", Format: "text"}))
	slog.Info("Shutdown log")

	oldStderr := os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w

	var wg sync.WaitGroup
	wg.Add(1)
	var captured string
	go func() {
		defer wg.Done()
		buf := make([]byte, 1024)
		n, _ := r.Read(buf)
		captured = string(buf[:n])
	}()

	require.NoError(t, Close())
	w.Close()
	wg.Wait()
	os.Stderr = oldStderr

	assert.True(t, strings.Contains(captured, "Shutdown log"), "got %q", captured)
}

func TestSetOutput_PropagatesFlushError(t *testing.T) {
	require.NoError(t, Init(true, config.LogConfig{}))
	slog.Info("pending")
	assert.Error(t, SetOutput(&failingWriter{}))
	require.NoError(t, Close())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("Error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}
