package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Thiagojm/fpga_rng_linux/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(Options{Format: "xml"})
	assert.ErrorContains(t, err, "unsupported value")
}

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "fpgarng.log")
	off := false
	logger, err := New(Options{Level: "warn", Format: "console", File: path, Color: &off})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("device lost", zap.String("port", "/dev/ttyUSB0"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "device lost", entry["msg"])
	assert.Equal(t, "/dev/ttyUSB0", entry["port"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "json"
	logger, err := NewFromConfig(&cfg)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewFromConfig(nil)
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestNewAccessLogger(t *testing.T) {
	disabled, err := NewAccessLogger("", false)
	require.NoError(t, err)
	assert.False(t, disabled.Core().Enabled(zapcore.ErrorLevel))

	path := filepath.Join(t.TempDir(), "access.log")
	access, err := NewAccessLogger(path, true)
	require.NoError(t, err)
	access.Info("request", zap.String("path", "/random"), zap.Int("status", 200))
	_ = access.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"path":"/random"`)
	assert.Contains(t, string(data), `"logger":"access"`)
}
