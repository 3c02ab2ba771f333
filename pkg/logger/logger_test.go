package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildConfig_Defaults(t *testing.T) {
	cfg := buildConfig(Config{})

	assert.Equal(t, "json", cfg.Encoding)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.Equal(t, zap.InfoLevel, cfg.Level.Level())
	assert.Equal(t, "timestamp", cfg.EncoderConfig.TimeKey)
}

func TestBuildConfig_InvalidLevelFallsBackToInfo(t *testing.T) {
	cfg := buildConfig(Config{Level: "chatty", Encoding: "xml"})

	assert.Equal(t, zap.InfoLevel, cfg.Level.Level())
	assert.Equal(t, "json", cfg.Encoding)
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")

	log, err := New(Config{Level: "debug", Encoding: "console", OutputPath: path})
	require.NoError(t, err)

	log.Debug("hello", zap.String("k", "v"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), "DEBUG")
}
