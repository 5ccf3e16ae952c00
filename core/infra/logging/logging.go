// Package logging is the component-scoped structured logger shared by pkgvault.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	envLogFormat = "PKGVAULT_LOG_FORMAT"
	envLogLevel  = "PKGVAULT_LOG_LEVEL"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
	output io.Writer = os.Stderr
)

// Configure rebuilds the global logger from the environment.
// PKGVAULT_LOG_FORMAT selects "json" or console text; PKGVAULT_LOG_LEVEL
// takes any zap level name and defaults to info.
func Configure() {
	mu.Lock()
	defer mu.Unlock()
	logger = build(output)
}

// SetOutput redirects log output and rebuilds the logger.
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	mu.Lock()
	defer mu.Unlock()
	output = w
	logger = build(w)
}

// Sync flushes buffered entries.
func Sync() {
	_ = current().Sync()
}

func build(w io.Writer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(strings.TrimSpace(os.Getenv(envLogFormat)), "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.ConsoleSeparator = " "
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	level := zapcore.InfoLevel
	if raw := strings.TrimSpace(os.Getenv(envLogLevel)); raw != "" {
		if parsed, err := zapcore.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
}

func current() *zap.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = build(output)
	}
	return logger
}

// Debug logs a debug message with key/value fields.
func Debug(component, msg string, kv ...interface{}) {
	current().Debug(msg, fields(component, kv)...)
}

// Info logs a message with key/value fields.
func Info(component, msg string, kv ...interface{}) {
	current().Info(msg, fields(component, kv)...)
}

// Warn logs a warning with key/value fields.
func Warn(component, msg string, kv ...interface{}) {
	current().Warn(msg, fields(component, kv)...)
}

// Error logs an error message with key/value fields.
func Error(component, msg string, kv ...interface{}) {
	current().Error(msg, fields(component, kv)...)
}

func fields(component string, kv []interface{}) []zap.Field {
	if len(kv)%2 != 0 {
		kv = append(kv, "(missing)")
	}
	out := make([]zap.Field, 0, len(kv)/2+1)
	out = append(out, zap.String("component", strings.ToLower(component)))
	for i := 0; i < len(kv); i += 2 {
		key := strings.TrimSpace(fmt.Sprint(kv[i]))
		switch v := kv[i+1].(type) {
		case error:
			out = append(out, zap.NamedError(key, v))
		default:
			out = append(out, zap.Any(key, v))
		}
	}
	return out
}
