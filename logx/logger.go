package logx

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// OutputFormat defines the log output format
type OutputFormat string

const (
	FormatConsole    OutputFormat = "console"
	FormatCloudWatch OutputFormat = "cloudwatch"
	FormatJSON       OutputFormat = "json"
)

// Logger represents a logger instance. It is safe for concurrent use.
type Logger struct {
	mu         sync.Mutex
	level      Level
	out        io.Writer
	prefix     string
	showCaller bool
	colored    bool
	format     OutputFormat
	pretty     *ValueFormatter
	compact    *ValueFormatter
}

// New creates a new logger with default settings
func New() *Logger {
	return &Logger{
		level:      InfoLevel,
		out:        os.Stdout,
		showCaller: true,
		colored:    true,
		format:     FormatConsole,
		pretty:     NewPrettyFormatter(),
		compact:    NewCompactFormatter(),
	}
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput sets the output destination
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// SetPrefix sets a prefix for all log messages
func (l *Logger) SetPrefix(prefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prefix = prefix
}

// SetShowCaller enables or disables showing caller information
func (l *Logger) SetShowCaller(show bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.showCaller = show
}

// SetColored enables or disables colored output
func (l *Logger) SetColored(colored bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.colored = colored
}

// SetFormat sets the output format. Structured formats never carry colour.
func (l *Logger) SetFormat(format OutputFormat) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
	if format != FormatConsole {
		l.colored = false
	}
}

// IsLevelEnabled checks if a level is enabled
func (l *Logger) IsLevelEnabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level != OffLevel && level >= l.level
}

// findCaller returns the first frame outside logx
func findCaller() string {
	for i := 2; i < 15; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		dir := filepath.Base(filepath.Dir(file))
		if dir == "logx" && !strings.HasSuffix(file, "_test.go") {
			continue
		}
		return fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return ""
}

// log is the core logging function. Debug and trace arguments go through the
// value formatter so structs are readable; other levels use plain %v.
func (l *Logger) log(level Level, msg string, args ...any) {
	if !l.IsLevelEnabled(level) {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	caller := ""
	if l.showCaller {
		caller = findCaller()
	}

	var line string
	switch l.format {
	case FormatJSON:
		line = l.renderJSON(level, caller, msg, args)
	case FormatCloudWatch:
		line = l.renderText(level, caller, "2006-01-02T15:04:05.000Z", l.compact, msg, args)
	default:
		line = l.renderText(level, caller, "2006-01-02 15:04:05", l.pretty, msg, args)
	}

	fmt.Fprintln(l.out, Redact(line))
}

func (l *Logger) renderText(level Level, caller, layout string, vf *ValueFormatter, msg string, args []any) string {
	if level <= DebugLevel && len(args) > 0 {
		formatted := make([]any, len(args))
		for i, arg := range args {
			formatted[i] = rawArg(arg, vf)
		}
		args = formatted
	}

	levelStr := level.String()
	if l.colored {
		levelStr = level.Colorize(levelStr)
	}

	var b strings.Builder
	b.WriteString("[" + time.Now().UTC().Format(layout) + "] ")
	if l.prefix != "" {
		b.WriteString(l.prefix + " ")
	}
	b.WriteString("[" + levelStr + "]")
	if caller != "" {
		b.WriteString(" " + caller)
	}
	b.WriteString(": ")
	b.WriteString(fmt.Sprintf(msg, args...))
	return b.String()
}

func (l *Logger) renderJSON(level Level, caller, msg string, args []any) string {
	entry := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"level":     level.String(),
		"message":   fmt.Sprintf(msg, args...),
	}
	if l.prefix != "" {
		entry["prefix"] = l.prefix
	}
	if caller != "" {
		entry["caller"] = caller
	}
	if level <= DebugLevel && len(args) > 0 {
		data := make([]json.RawMessage, len(args))
		for i, arg := range args {
			data[i] = json.RawMessage(FormatValueJSON(arg))
		}
		entry["data"] = data
	}

	out, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"level":"ERROR","message":%q}`, err.Error())
	}
	return string(out)
}

// formattedArg keeps the pre-rendered text from being quoted again by %v.
type formattedArg string

func (f formattedArg) String() string { return string(f) }

func rawArg(arg any, vf *ValueFormatter) any {
	switch arg.(type) {
	case string, fmt.Stringer, int, int64, float64, bool:
		return arg
	}
	return formattedArg(vf.Format(arg))
}

// Trace logs a message at trace level
func (l *Logger) Trace(msg string, args ...any) { l.log(TraceLevel, msg, args...) }

// Debug logs a message at debug level
func (l *Logger) Debug(msg string, args ...any) { l.log(DebugLevel, msg, args...) }

// Info logs a message at info level
func (l *Logger) Info(msg string, args ...any) { l.log(InfoLevel, msg, args...) }

// Warn logs a message at warn level
func (l *Logger) Warn(msg string, args ...any) { l.log(WarnLevel, msg, args...) }

// Error logs a message at error level
func (l *Logger) Error(msg string, args ...any) { l.log(ErrorLevel, msg, args...) }

// Fatal logs a message at error level and exits
func (l *Logger) Fatal(msg string, args ...any) {
	l.log(ErrorLevel, msg, args...)
	os.Exit(1)
}

// DebugStruct logs a named value with full debug formatting
func (l *Logger) DebugStruct(name string, value any) {
	l.log(DebugLevel, "%s = %v", name, value)
}
