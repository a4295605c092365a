package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/devbridge/internal/infrastructure/config"
)

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name string
		in   config.LogConfig
		want Config
	}{
		{"defaults", config.LogConfig{}, Config{Level: "info"}},
		{"explicit level", config.LogConfig{Level: "warn"}, Config{Level: "warn"}},
		{"development", config.LogConfig{Development: true}, Config{Level: "debug", Development: true}},
		{"development with level", config.LogConfig{Level: "error", Development: true}, Config{Level: "error", Development: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromConfig(tt.in))
		})
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.ErrorContains(t, err, `log level "loud"`)
}

func TestNewWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	l, err := New(Config{Level: "info", OutputPaths: []string{path}})
	require.NoError(t, err)

	l.Named("bridge").Debug("hidden")
	l.Named("bridge").Info("call sent", zap.String("method", "Page.navigate"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"message":"call sent"`)
	assert.Contains(t, lines[0], `"logger":"bridge"`)
	assert.Contains(t, lines[0], `"method":"Page.navigate"`)
	assert.Contains(t, lines[0], `"timestamp":`)
}

func TestNamedOnNilLogger(t *testing.T) {
	var l *Logger
	child := l.Named("bridge")
	require.NotNil(t, child)
	assert.NotPanics(t, func() { child.Info("discarded", zap.String("k", "v")) })
	assert.NotNil(t, l.With(zap.Int("n", 1)).Logger)
}

func TestEncoderFor(t *testing.T) {
	enc, _ := encoderFor(true)
	assert.Equal(t, "console", enc)
	enc, _ = encoderFor(false)
	assert.Equal(t, "json", enc)
}
