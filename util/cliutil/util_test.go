package cliutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetupSlog(t *testing.T) {
	assert := assert.New(t)
	defer slog.SetDefault(slog.Default())

	p := filepath.Join(t.TempDir(), "modbot.log")
	logger, err := SetupSlog(LogOptions{LogLevel: "debug", LogFormat: "json", LogPath: p})
	assert.NoError(err)
	logger.Debug("hello", "k", "v")
	b, err := os.ReadFile(p)
	assert.NoError(err)
	assert.Contains(string(b), `"msg":"hello"`)

	_, err = SetupSlog(LogOptions{LogLevel: "loud"})
	assert.Error(err)
	_, err = SetupSlog(LogOptions{LogFormat: "xml", LogPath: p})
	assert.Error(err)
}

func TestSetupSlogEnv(t *testing.T) {
	assert := assert.New(t)
	defer slog.SetDefault(slog.Default())

	t.Setenv("MODBOT_LOG_LEVEL", "warn")
	t.Setenv("MODBOT_LOG_FMT", "text")
	logger, err := SetupSlog(LogOptions{})
	assert.NoError(err)
	assert.False(logger.Enabled(t.Context(), slog.LevelInfo))
	assert.True(logger.Enabled(t.Context(), slog.LevelWarn))
}
