package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultLogFile = "tmux-popup-list.log"

var (
	mu      sync.Mutex
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger  = zap.NewNop()
	rotator *lumberjack.Logger
)

// Configure points the shared logger at path, rotating it once it grows past
// a few megabytes. Empty values fall back to the default path. Directories
// are created automatically when missing.
func Configure(path string) {
	mu.Lock()
	defer mu.Unlock()
	if strings.TrimSpace(path) == "" {
		path = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "unable to create log directory: %v\n", err)
		path = defaultLogFile
	}
	if rotator != nil {
		_ = rotator.Close()
	}
	rotator = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    5,
		MaxBackups: 3,
		MaxAge:     14,
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "time"
	encoderCfg.MessageKey = "event"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), level)
	logger = zap.New(core)
}

// Use swaps in l as the shared logger and returns a function restoring the
// previous one.
func Use(l *zap.Logger) func() {
	mu.Lock()
	prev := logger
	logger = l
	mu.Unlock()
	return func() {
		mu.Lock()
		logger = prev
		mu.Unlock()
	}
}

// SetTraceEnabled toggles emission of structured trace entries.
func SetTraceEnabled(enabled bool) {
	if enabled {
		level.SetLevel(zapcore.DebugLevel)
		return
	}
	level.SetLevel(zapcore.InfoLevel)
}

// TraceEnabled reports whether trace entries are currently written.
func TraceEnabled() bool {
	return level.Enabled(zapcore.DebugLevel)
}

// Logger returns the shared logger.
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Error records err in the shared log.
func Error(err error) {
	if err == nil {
		return
	}
	Logger().Error("error", zap.Error(err))
}

// Notice records an informational message, such as a source being replaced.
func Notice(format string, args ...interface{}) {
	Logger().Info("notice", zap.String("message", fmt.Sprintf(format, args...)))
}

// Trace appends a structured entry to the shared log when tracing is enabled.
func Trace(event string, payload interface{}) {
	if !TraceEnabled() {
		return
	}
	Logger().Debug(event, zap.Any("payload", payload))
}

// Sync flushes buffered entries and closes the rotating file.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	_ = logger.Sync()
	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}
	logger = zap.NewNop()
}
