package logger

import (
	"sync"
)

var (
	globalLogger *SystemLogger
	mu           sync.RWMutex
	once         sync.Once
)

// InitGlobalLogger initializes the global system logger. Only the first
// call takes effect.
func InitGlobalLogger(config SystemLoggerConfig, sink Sink) {
	once.Do(func() {
		// Development environments log everything
		if config.Environment == "development" && config.MinLevel == "" {
			config.MinLevel = LevelDebug
		}
		if config.Service == "" {
			config.Service = "gopaytr"
		}
		if config.Version == "" {
			config.Version = "1.0.0"
		}

		mu.Lock()
		globalLogger = NewSystemLogger(sink, config)
		mu.Unlock()
	})
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *SystemLogger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	// Fallback to console-only logger if not initialized
	mu.Lock()
	defer mu.Unlock()
	if globalLogger == nil {
		globalLogger = NewSystemLogger(nil, SystemLoggerConfig{
			EnableConsole: true,
			MinLevel:      LevelInfo,
			Service:       "gopaytr",
			Version:       "1.0.0",
			Environment:   "development",
		})
	}
	return globalLogger
}

// Convenience functions for global logging

// Debug logs a debug message using the global logger
func Debug(message string, ctx ...LogContext) {
	GetGlobalLogger().Debug(message, ctx...)
}

// Info logs an info message using the global logger
func Info(message string, ctx ...LogContext) {
	GetGlobalLogger().Info(message, ctx...)
}

// Warn logs a warning message using the global logger
func Warn(message string, ctx ...LogContext) {
	GetGlobalLogger().Warn(message, ctx...)
}

// Error logs an error message using the global logger
func Error(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Error(message, err, ctx...)
}

// Fatal logs a fatal message using the global logger and exits
func Fatal(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Fatal(message, err, ctx...)
}

// WithContext creates a context logger from the global logger
func WithContext(ctx LogContext) *ContextLogger {
	return GetGlobalLogger().WithContext(ctx)
}

// WithMerchant creates a context logger with merchant ID
func WithMerchant(merchantID string) *ContextLogger {
	return WithContext(LogContext{MerchantID: merchantID})
}

// WithProvider creates a context logger with provider
func WithProvider(provider string) *ContextLogger {
	return WithContext(LogContext{Provider: provider})
}
