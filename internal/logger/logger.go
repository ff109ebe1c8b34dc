// Package logger provides the leveled logging interface used across
// restic-orchestrator. Components receive a Logger through their
// constructors; nothing in the engine reaches for a package-level logger.
package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/juju/loggo"
)

// Logger defines the interface for logging operations.
// All methods accept a format string and arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Verbose(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Level is the verbosity selected on the command line.
type Level int

const (
	LevelInfo Level = iota
	LevelVerbose
	LevelDebug
)

// String returns the flag spelling of the level.
func (l Level) String() string {
	switch l {
	case LevelVerbose:
		return "verbose"
	case LevelDebug:
		return "debug"
	default:
		return "info"
	}
}

// loggoLevel maps our three levels onto loggo. Verbose sits on loggo's
// DEBUG and our Debug on TRACE so that --verbose doesn't drown the user
// in rendered command lines.
func (l Level) loggoLevel() loggo.Level {
	switch l {
	case LevelVerbose:
		return loggo.DEBUG
	case LevelDebug:
		return loggo.TRACE
	default:
		return loggo.INFO
	}
}

// RootModule is the loggo module all restic-orchestrator loggers hang off.
const RootModule = "restic-orchestrator"

// Configure routes all loggo output to w and sets the root level.
func Configure(w io.Writer, level Level) error {
	if _, err := loggo.ReplaceDefaultWriter(loggo.NewSimpleWriter(w, formatEntry)); err != nil {
		return err
	}
	loggo.GetLogger("").SetLogLevel(level.loggoLevel())
	return nil
}

func formatEntry(entry loggo.Entry) string {
	module := strings.TrimPrefix(entry.Module, RootModule)
	module = strings.TrimPrefix(module, ".")
	if module == "" {
		return fmt.Sprintf("%s %-7s %s", entry.Timestamp.Format("15:04:05"), entry.Level, entry.Message)
	}
	return fmt.Sprintf("%s %-7s [%s] %s", entry.Timestamp.Format("15:04:05"), entry.Level, module, entry.Message)
}

type loggoLogger struct {
	l loggo.Logger
}

// New returns a Logger writing to the loggo module RootModule.<name>.
func New(name string) Logger {
	module := RootModule
	if name != "" {
		module += "." + name
	}
	return &loggoLogger{l: loggo.GetLogger(module)}
}

func (g *loggoLogger) Debug(format string, args ...interface{}) {
	g.l.Tracef(format, args...)
}

func (g *loggoLogger) Verbose(format string, args ...interface{}) {
	g.l.Debugf(format, args...)
}

func (g *loggoLogger) Info(format string, args ...interface{}) {
	g.l.Infof(format, args...)
}

func (g *loggoLogger) Warn(format string, args ...interface{}) {
	g.l.Warningf(format, args...)
}

func (g *loggoLogger) Error(format string, args ...interface{}) {
	g.l.Errorf(format, args...)
}

// noopLogger implements Logger but discards all messages.
type noopLogger struct{}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(format string, args ...interface{})   {}
func (l *noopLogger) Verbose(format string, args ...interface{}) {}
func (l *noopLogger) Info(format string, args ...interface{})    {}
func (l *noopLogger) Warn(format string, args ...interface{})    {}
func (l *noopLogger) Error(format string, args ...interface{})   {}

// LogMessage represents a captured log message.
type LogMessage struct {
	Level   string
	Message string
}

// BufferLogger captures log messages for testing.
type BufferLogger struct {
	Messages []LogMessage
}

// NewBufferLogger creates a logger that captures messages for inspection.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{
		Messages: make([]LogMessage, 0),
	}
}

func (l *BufferLogger) add(level, format string, args ...interface{}) {
	l.Messages = append(l.Messages, LogMessage{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *BufferLogger) Debug(format string, args ...interface{}) {
	l.add("debug", format, args...)
}

func (l *BufferLogger) Verbose(format string, args ...interface{}) {
	l.add("verbose", format, args...)
}

func (l *BufferLogger) Info(format string, args ...interface{}) {
	l.add("info", format, args...)
}

func (l *BufferLogger) Warn(format string, args ...interface{}) {
	l.add("warn", format, args...)
}

func (l *BufferLogger) Error(format string, args ...interface{}) {
	l.add("error", format, args...)
}

// HasLevel returns true if any message was logged at the given level.
func (l *BufferLogger) HasLevel(level string) bool {
	for _, m := range l.Messages {
		if m.Level == level {
			return true
		}
	}
	return false
}

// Contains returns true if any captured message contains substr.
func (l *BufferLogger) Contains(substr string) bool {
	for _, m := range l.Messages {
		if strings.Contains(m.Message, substr) {
			return true
		}
	}
	return false
}

// Clear removes all captured messages.
func (l *BufferLogger) Clear() {
	l.Messages = l.Messages[:0]
}
