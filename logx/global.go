package logx

import (
	"io"
	"os"
	"strings"
)

var defaultLogger *Logger

func init() {
	defaultLogger = New()
	configureFromEnv(defaultLogger, os.Getenv)
}

func configureFromEnv(l *Logger, getenv func(string) string) {
	if lvl := getenv("LOG_LEVEL"); lvl != "" {
		if level, err := ParseLevel(lvl); err == nil {
			l.SetLevel(level)
		}
	}

	switch strings.ToLower(getenv("LOG_FORMAT")) {
	case "json":
		l.SetFormat(FormatJSON)
	case "cloudwatch":
		l.SetFormat(FormatCloudWatch)
	case "console":
		l.SetFormat(FormatConsole)
	}

	if v := getenv("LOG_COLOR"); v != "" {
		l.SetColored(strings.ToLower(v) != "false")
	}
	if v := getenv("LOG_CALLER"); v != "" {
		l.SetShowCaller(strings.ToLower(v) != "false")
	}
}

// SetLevel sets the global log level
func SetLevel(level Level) { defaultLogger.SetLevel(level) }

// SetPrefix sets the global log prefix
func SetPrefix(prefix string) { defaultLogger.SetPrefix(prefix) }

// SetOutput sets the global output destination
func SetOutput(w io.Writer) { defaultLogger.SetOutput(w) }

// SetShowCaller sets the global caller info display
func SetShowCaller(show bool) { defaultLogger.SetShowCaller(show) }

// SetColored sets the global colored output
func SetColored(colored bool) { defaultLogger.SetColored(colored) }

// SetFormat sets the global log format
func SetFormat(format OutputFormat) { defaultLogger.SetFormat(format) }

// GetLogger returns the default logger instance
func GetLogger() *Logger { return defaultLogger }

func Trace(msg string, args ...any) { defaultLogger.Trace(msg, args...) }
func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }
func Info(msg string, args ...any)  { defaultLogger.Info(msg, args...) }
func Warn(msg string, args ...any)  { defaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }
func Fatal(msg string, args ...any) { defaultLogger.Fatal(msg, args...) }

// DebugStruct logs a struct with full debug formatting globally
func DebugStruct(name string, value any) { defaultLogger.DebugStruct(name, value) }

// IsLevelEnabled checks if a level is enabled globally
func IsLevelEnabled(level Level) bool { return defaultLogger.IsLevelEnabled(level) }
