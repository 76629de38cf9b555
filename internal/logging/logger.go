package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "POWERWALL_LOG_LEVEL"

// maxBodyPreview caps how much of a response body ends up in a debug entry
const maxBodyPreview = 256

// Initialize creates a new logger with the specified level.
// If level is empty, it checks POWERWALL_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	l, err := New(level)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// New builds a console logger at the given level without touching the global one.
// Unknown levels fall back to info.
func New(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}

// InitializeFromEnv initializes the logger from the POWERWALL_LOG_LEVEL
// environment variable.
func InitializeFromEnv() error {
	return Initialize("")
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		// Library users get no output unless they initialize logging
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogRequest logs an outgoing gateway request. Request bodies are never
// logged since the login body carries the password.
func LogRequest(l *zap.Logger, method, path string, authenticated bool) {
	l.Debug("Gateway request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Bool("authenticated", authenticated),
	)
}

// LogResponse logs a gateway response with a printable preview of its body
func LogResponse(l *zap.Logger, method, path string, statusCode int, body []byte) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", statusCode),
		zap.Int("length", len(body)),
	}
	if l.Core().Enabled(zapcore.DebugLevel) && len(body) > 0 {
		fields = append(fields, zap.String("body", asciiDump(body)))
	}
	l.Debug("Gateway response", fields...)
}

// LogVersionGate logs which code path a version-gated operation took
func LogVersionGate(l *zap.Logger, operation, path string, pinned bool, version string) {
	l.Debug("Version gate resolved",
		zap.String("operation", operation),
		zap.String("path", path),
		zap.Bool("pinned", pinned),
		zap.String("version", version),
	)
}

func asciiDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	truncated := len(data) > maxBodyPreview
	if truncated {
		data = data[:maxBodyPreview]
	}

	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	if truncated {
		return string(result) + "..."
	}
	return string(result)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
