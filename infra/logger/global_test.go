package logger

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetGlobal() {
	mu.Lock()
	globalLogger = nil
	mu.Unlock()
	once = sync.Once{}
}

func TestInitGlobalLogger(t *testing.T) {
	resetGlobal()

	InitGlobalLogger(SystemLoggerConfig{Environment: "production"}, nil)

	assert.NotNil(t, globalLogger)
	assert.Equal(t, "gopaytr", globalLogger.service)
	assert.Equal(t, "1.0.0", globalLogger.version)
	assert.Equal(t, LevelInfo, globalLogger.minLevel)
}

func TestGetGlobalLogger(t *testing.T) {
	resetGlobal()

	logger := GetGlobalLogger()
	assert.NotNil(t, logger)
	assert.Equal(t, "gopaytr", logger.service)
	assert.Same(t, logger, GetGlobalLogger())
}

func TestGlobalLoggerConvenienceFunctions(t *testing.T) {
	resetGlobal()

	var buf bytes.Buffer
	InitGlobalLogger(SystemLoggerConfig{
		EnableConsole: true,
		MinLevel:      LevelDebug,
		Output:        &buf,
	}, nil)

	Debug("Debug message")
	Info("Info message")
	Warn("Warning message")
	Error("Error message", nil)

	ctx := LogContext{MerchantID: "100"}
	Debug("Debug with context", ctx)
	Info("Info with context", ctx)

	assert.Len(t, decodeLines(t, &buf), 6)
}

func TestWithMerchantAndProvider(t *testing.T) {
	resetGlobal()
	InitGlobalLogger(SystemLoggerConfig{}, nil)

	assert.Equal(t, "100", WithMerchant("100").context.MerchantID)
	assert.Equal(t, "paytr", WithProvider("paytr").context.Provider)
}

func TestInitGlobalLogger_OnlyOnce(t *testing.T) {
	resetGlobal()

	InitGlobalLogger(SystemLoggerConfig{Service: "first"}, nil)
	firstLogger := globalLogger

	InitGlobalLogger(SystemLoggerConfig{Service: "second"}, nil)

	assert.Same(t, firstLogger, globalLogger)
	assert.Equal(t, "first", globalLogger.service)
}

func TestGlobalLogger_EnvironmentConfiguration(t *testing.T) {
	resetGlobal()

	InitGlobalLogger(SystemLoggerConfig{Environment: "development"}, nil)

	assert.Equal(t, LevelDebug, globalLogger.minLevel)
}
