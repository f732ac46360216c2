package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T) (*Config, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "test.log")
	return &Config{
		LogFilePath:   logPath,
		MaxFileSize:   1024 * 1024,
		MaxBackups:    3,
		Level:         LevelDebug,
		EnableConsole: false,
	}, logPath
}

func TestNewDefaultLogger(t *testing.T) {
	config, logPath := newTestConfig(t)

	logger, err := NewDefaultLogger(config)
	require.NoError(t, err)
	defer logger.Close()

	_, err = os.Stat(logPath)
	assert.NoError(t, err, "log file should be created")
}

func TestLogLevels(t *testing.T) {
	config, logPath := newTestConfig(t)

	logger, err := NewDefaultLogger(config)
	require.NoError(t, err)

	logger.Debug("debug message", String("key", "value"))
	logger.Info("info message", Int("count", 42))
	logger.Warn("warn message", Bool("flag", true))
	logger.Error("error message", errors.New("boom"))
	logger.Close()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	logContent := string(content)

	for _, want := range []string{
		"[DEBUG]", "[INFO]", "[WARN]", "[ERROR]",
		"debug message", "info message", "warn message", "error message",
		"key=value", "count=42", "flag=true", "boom",
	} {
		assert.Contains(t, logContent, want)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	config, logPath := newTestConfig(t)
	config.Level = LevelWarn

	logger, err := NewDefaultLogger(config)
	require.NoError(t, err)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", nil)
	logger.Close()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	logContent := string(content)

	assert.NotContains(t, logContent, "[DEBUG]")
	assert.NotContains(t, logContent, "[INFO]")
	assert.Contains(t, logContent, "[WARN]")
	assert.Contains(t, logContent, "[ERROR]")
}

func TestSetLevel(t *testing.T) {
	config, logPath := newTestConfig(t)

	logger, err := NewDefaultLogger(config)
	require.NoError(t, err)

	logger.Debug("debug before")
	logger.SetLevel(LevelError)
	logger.Debug("debug after")
	logger.Error("error after", nil)
	logger.Close()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	logContent := string(content)

	assert.Contains(t, logContent, "debug before")
	assert.NotContains(t, logContent, "debug after")
	assert.Contains(t, logContent, "error after")
}

func TestLogRotation(t *testing.T) {
	config, logPath := newTestConfig(t)
	config.MaxFileSize = 100

	logger, err := NewDefaultLogger(config)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		logger.Info("a message long enough to push the file past the rotation threshold")
	}
	logger.Close()

	_, err = os.Stat(logPath + ".1")
	assert.NoError(t, err, "backup log file should exist after rotation")
}

func TestGlobalLogger(t *testing.T) {
	config, logPath := newTestConfig(t)

	require.NoError(t, Init(config))

	Debug("global debug")
	Info("global info")
	Warn("global warn")
	Error("global error", errors.New("global boom"))
	Close()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	logContent := string(content)

	for _, want := range []string{"global debug", "global info", "global warn", "global error"} {
		assert.Contains(t, logContent, want)
	}
}

func TestNoopLogger(t *testing.T) {
	SetGlobalLogger(nil)

	// Must not panic without an initialized global logger.
	Debug("test")
	Info("test")
	Warn("test")
	Error("test", nil)

	assert.NotNil(t, GetLogger())
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.level.String())
	}
}

func TestErrFieldWithNil(t *testing.T) {
	field := Err(nil)
	assert.Equal(t, "error", field.Key)
	assert.Nil(t, field.Value)
}

func TestLogDirectoryCreation(t *testing.T) {
	config, _ := newTestConfig(t)
	config.LogFilePath = filepath.Join(t.TempDir(), "nested", "dir", "test.log")

	logger, err := NewDefaultLogger(config)
	require.NoError(t, err)
	defer logger.Close()

	_, err = os.Stat(filepath.Dir(config.LogFilePath))
	assert.NoError(t, err, "nested log directory should be created")
}

func TestConsoleOutputDisabled(t *testing.T) {
	config, logPath := newTestConfig(t)

	logger, err := NewDefaultLogger(config)
	require.NoError(t, err)
	logger.Info("file only")
	logger.Close()

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), "file only"))
}
