// Package logging provides the structured logger shared by every service
// process. The call-site shape (Info/Warn/Error/Debug with a field map)
// follows the teacher's internal/pkg/logging package; the backend is
// go.uber.org/zap, matching the logging stack used elsewhere in the
// retrieval pack for services of this shape.
package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base *zap.Logger
	once sync.Once
)

// Init builds the process-wide logger at the given level ("debug", "info",
// "warn", "error") with the given service name attached to every entry.
func Init(serviceName, level string) {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))

		logger, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
		base = logger.With(zap.String("service", serviceName))
	})
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func logger() *zap.Logger {
	if base == nil {
		Init("unknown-service", "info")
	}
	return base
}

func toFields(fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// Debug logs a debug-level message with optional structured fields.
func Debug(message string, fields map[string]interface{}) {
	logger().Debug(message, toFields(fields)...)
}

// Info logs an info-level message with optional structured fields.
func Info(message string, fields map[string]interface{}) {
	logger().Info(message, toFields(fields)...)
}

// Warn logs a warn-level message with optional structured fields.
func Warn(message string, fields map[string]interface{}) {
	logger().Warn(message, toFields(fields)...)
}

// Error logs an error-level message, attaching err under the "error" field.
func Error(message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	zfields := toFields(fields)
	if err != nil {
		zfields = append(zfields, zap.Error(err))
	}
	logger().Error(message, zfields...)
}

// Sync flushes any buffered log entries; call on shutdown.
func Sync() {
	if base != nil {
		_ = base.Sync()
	}
}
