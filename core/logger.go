package core

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

var loggerInstance Logger = *NewConsoleLogger()

// SetLogger sets the global logger instance.
func SetLogger(logger Logger) {
	loggerInstance = logger
}

// GetLogger retrieves the global logger instance.
func GetLogger() *Logger {
	return &loggerInstance
}

// Logger is a thin structured logger: every record is a level, a message,
// and a flat attribute map, handed to a pluggable handler func. The control
// plane installs its own handler to mirror records over the wire.
type Logger struct {
	handlerFunc func(level string, msg string, attrs map[string]interface{})
	attrs       map[string]interface{}
}

func NewLogger(handler func(level string, msg string, attrs map[string]interface{})) *Logger {
	return &Logger{
		handlerFunc: handler,
		attrs:       make(map[string]interface{}),
	}
}

// NewConsoleLogger creates a logger that prints human-readable lines.
// WARN and above go to stderr.
func NewConsoleLogger() *Logger {
	handler := func(level string, msg string, attrs map[string]interface{}) {
		var sb strings.Builder
		sb.WriteString(time.Now().Format(time.RFC3339))
		sb.WriteString(" [")
		sb.WriteString(level)
		sb.WriteString("] ")
		sb.WriteString(msg)
		if len(attrs) > 0 {
			keys := make([]string, 0, len(attrs))
			for k := range attrs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			sb.WriteString(" |")
			for _, k := range keys {
				fmt.Fprintf(&sb, " %s=%v", k, attrs[k])
			}
		}
		sb.WriteByte('\n')
		switch level {
		case "WARN", "ERROR", "FATAL":
			fmt.Fprint(os.Stderr, sb.String())
		default:
			fmt.Print(sb.String())
		}
		if level == "FATAL" {
			os.Exit(1)
		}
	}

	return &Logger{
		handlerFunc: handler,
		attrs:       make(map[string]interface{}),
	}
}

// NewNopLogger creates a logger that discards everything. Used for silent
// operations and as a default in tests.
func NewNopLogger() *Logger {
	return &Logger{
		handlerFunc: func(string, string, map[string]interface{}) {},
		attrs:       make(map[string]interface{}),
	}
}

func (l *Logger) log(level string, msg string, args ...interface{}) {
	if l.handlerFunc == nil {
		return
	}
	if len(args) > 0 {
		// Detect slog-style key-value pairs: even number of args where
		// every key position is a string.
		if isKeyValuePairs(args) {
			attrs := make(map[string]interface{}, len(l.attrs)+len(args)/2)
			for k, v := range l.attrs {
				attrs[k] = v
			}
			for i := 0; i < len(args)-1; i += 2 {
				key, _ := args[i].(string)
				attrs[key] = args[i+1]
			}
			l.handlerFunc(level, msg, attrs)
			return
		}
		msg = fmt.Sprintf(msg, args...)
	}
	l.handlerFunc(level, msg, l.attrs)
}

func isKeyValuePairs(args []interface{}) bool {
	if len(args)%2 != 0 {
		return false
	}
	for i := 0; i < len(args); i += 2 {
		if _, ok := args[i].(string); !ok {
			return false
		}
	}
	return true
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.log("DEBUG", format, args...) }

func (l *Logger) Info(msg string, args ...interface{}) { l.log("INFO", msg, args...) }

func (l *Logger) Infof(format string, args ...interface{}) { l.log("INFO", format, args...) }

func (l *Logger) Warn(msg string, args ...interface{}) { l.log("WARN", msg, args...) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.log("WARN", format, args...) }

func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args...) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.log("ERROR", format, args...) }

func (l *Logger) Fatal(msg string, args ...interface{}) { l.log("FATAL", msg, args...) }

// Tee returns a child logger whose records also go to fn after the original
// handler runs.
func (l *Logger) Tee(fn func(level string, msg string, attrs map[string]interface{})) *Logger {
	orig := l.handlerFunc
	return &Logger{
		handlerFunc: func(level string, msg string, attrs map[string]interface{}) {
			orig(level, msg, attrs)
			fn(level, msg, attrs)
		},
		attrs: l.attrs,
	}
}

// With returns a child logger that carries the given attributes on every record.
func (l *Logger) With(attrs map[string]interface{}) *Logger {
	combined := make(map[string]interface{}, len(l.attrs)+len(attrs))
	for k, v := range l.attrs {
		combined[k] = v
	}
	for k, v := range attrs {
		combined[k] = v
	}
	return &Logger{
		handlerFunc: l.handlerFunc,
		attrs:       combined,
	}
}
