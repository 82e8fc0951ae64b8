package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/countbridge/logging"
)

func TestApp_Version(t *testing.T) {
	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf

	require.NoError(t, app.Run([]string{"countbridge", "--version"}))
	assert.Contains(t, buf.String(), "countbridge version dev")
}

func TestApp_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("push:\n  protocol: smoke-signals\n"), 0o644))

	app := newApp()
	err := app.Run([]string{"countbridge", "-c", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestApp_MissingConfig(t *testing.T) {
	app := newApp()
	err := app.Run([]string{"countbridge", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestApp_ConfigRequired(t *testing.T) {
	t.Setenv("COUNTBRIDGE_CONFIG", "")
	os.Unsetenv("COUNTBRIDGE_CONFIG")

	var buf bytes.Buffer
	app := newApp()
	app.Writer = &buf
	err := app.Run([]string{"countbridge"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"config"`)
}

func writeLoggingConfig(t *testing.T, dir, level string) string {
	t.Helper()
	path := filepath.Join(dir, "countbridge.yaml")
	content := "logging:\n  level: " + level + "\n  output: stderr\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReloadLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := writeLoggingConfig(t, dir, "debug")

	logger, err := logging.New(logging.Config{Level: "info", Output: "stderr"})
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, reloadLogLevel(path, logger))
	assert.Equal(t, slog.LevelDebug, logger.Level())

	require.Error(t, reloadLogLevel(filepath.Join(dir, "missing.yaml"), logger))
	assert.Equal(t, slog.LevelDebug, logger.Level(), "level kept when the file cannot be read")
}

func TestReloadLoop(t *testing.T) {
	path := writeLoggingConfig(t, t.TempDir(), "warn")

	logger, err := logging.New(logging.Config{Level: "info", Output: "stderr"})
	require.NoError(t, err)
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal)
	done := make(chan struct{})
	go func() {
		reloadLoop(ctx, signals, path, logger)
		close(done)
	}()

	signals <- syscall.SIGHUP
	assert.Eventually(t, func() bool {
		return logger.Level() == slog.LevelWarn
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reload loop did not exit")
	}
}
