package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rustyeddy/tradeguard/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, closer, err := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("bar accepted", zap.String("instrument", "EUR_USD"))
	require.NoError(t, closer())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "bar accepted", m["msg"])
	assert.Equal(t, "EUR_USD", m["instrument"])
	assert.Equal(t, "info", m["level"])
	assert.Contains(t, m, "time")
}

func TestNewConsoleDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, closer, err := New(config.LoggingConfig{}, &buf)
	require.NoError(t, err)

	log.Warn("paused")
	require.NoError(t, closer())
	assert.Contains(t, buf.String(), "WARN")
	assert.Contains(t, buf.String(), "paused")
}

func TestNewRejectsBadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{"level", config.LoggingConfig{Level: "loud"}},
		{"format", config.LoggingConfig{Format: "xml"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := New(tt.cfg, &bytes.Buffer{})
			assert.Error(t, err)
		})
	}
}

func TestNewFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "tradeguard.log")
	var buf bytes.Buffer
	log, closer, err := New(config.LoggingConfig{Level: "debug", File: path, MaxSizeMB: 1}, &buf)
	require.NoError(t, err)

	log.Debug("to both")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to both"`)
	assert.Contains(t, buf.String(), "to both")
}
