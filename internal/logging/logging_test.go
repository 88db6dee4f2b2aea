package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_FileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	var console bytes.Buffer

	logger, err := New(Options{File: path, Level: "debug", Console: &console})
	require.NoError(t, err)
	logger.Debug("stream started", zap.String("purpose", "chat"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	assert.Equal(t, "stream started", line["msg"])
	assert.Equal(t, "chat", line["purpose"])
	assert.Equal(t, "DEBUG", line["level"])

	assert.Contains(t, console.String(), "stream started")
}

func TestNew_LevelFilters(t *testing.T) {
	var console bytes.Buffer
	logger, err := New(Options{Level: "warn", Console: &console})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.False(t, strings.Contains(console.String(), "hidden"))
	assert.True(t, strings.Contains(console.String(), "shown"))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	logger, err := New(Options{})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestDefaultLogPath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/var/state")
	p, err := DefaultLogPath()
	require.NoError(t, err)
	assert.Equal(t, "/var/state/profacademy/profacademy.log", p)
}
