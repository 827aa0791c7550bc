package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes debug logs to a JSON file and errors to stderr.
type Logger struct {
	sugar   *zap.SugaredLogger
	file    *os.File
	enabled bool
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Get returns the default logger instance.
func Get() *Logger {
	once.Do(func() {
		defaultLogger = open()
	})
	return defaultLogger
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

// stderrCore prints errors only, in a compact console form.
func stderrCore() zapcore.Core {
	cfg := zapcore.EncoderConfig{
		MessageKey:  "message",
		LevelKey:    "level",
		EncodeLevel: zapcore.CapitalLevelEncoder,
	}
	return zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), zapcore.ErrorLevel)
}

func open() *Logger {
	l := &Logger{}
	debugEnv := os.Getenv("MAGIDE_DEBUG")

	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "magide log: failed to get home dir: %v\n", err)
		l.sugar = zap.New(stderrCore()).Sugar()
		return l
	}

	_, statErr := os.Stat(filepath.Join(home, ".magide", "debug"))
	if debugEnv != "1" && statErr != nil {
		l.sugar = zap.New(stderrCore()).Sugar()
		return l
	}

	logsDir := filepath.Join(home, ".magide", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "magide log: failed to create logs dir %s: %v\n", logsDir, err)
		l.sugar = zap.New(stderrCore()).Sugar()
		return l
	}

	logPath := filepath.Join(logsDir, fmt.Sprintf("magide-%s.log", time.Now().Format("2006-01-02_15-04-05")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "magide log: failed to open log file %s: %v\n", logPath, err)
		l.sugar = zap.New(stderrCore()).Sugar()
		return l
	}

	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(file), zapcore.DebugLevel)
	l.file = file
	l.enabled = true
	l.sugar = zap.New(zapcore.NewTee(fileCore, stderrCore())).Sugar()

	if debugEnv == "1" {
		l.Info("logging started (MAGIDE_DEBUG=1)")
	} else {
		l.Info("logging started (~/.magide/debug exists)")
	}
	l.Info("log file: %s", logPath)
	return l
}

// New builds a standalone logger writing JSON lines at or above level to w.
func New(w io.Writer, level zapcore.Level) *Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(w), level)
	return &Logger{sugar: zap.New(core).Sugar(), enabled: level <= zapcore.DebugLevel}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{sugar: l.sugar.With(kv...), file: l.file, enabled: l.enabled}
}

// Enabled reports whether debug logging is on.
func (l *Logger) Enabled() bool {
	return l.enabled
}

func (l *Logger) Debug(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.sugar.Warnf(format, args...) }

// Error logs to the file (when enabled) and always to stderr.
func (l *Logger) Error(format string, args ...any) { l.sugar.Errorf(format, args...) }

// Stream logs a streaming event.
func (l *Logger) Stream(eventType string, content string) {
	if !l.enabled {
		return
	}
	l.sugar.Debugw("stream", "event", eventType, "content", truncate(content, 200))
}

// ToolCall logs an accumulated tool call.
func (l *Logger) ToolCall(name string, args string) {
	if !l.enabled {
		return
	}
	l.sugar.Debugw("tool_call", "name", name, "args", truncate(args, 500))
}

// Close flushes buffered entries and closes the log file.
func (l *Logger) Close() {
	_ = l.sugar.Sync()
	if l.file != nil {
		l.file.Close()
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
