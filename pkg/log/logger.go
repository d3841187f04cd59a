package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents logging verbosity
type Level int

const (
	ErrorLevel Level = iota
	InfoLevel
	DebugLevel
	TraceLevel
)

var levelNames = map[Level]string{
	ErrorLevel: "ERROR",
	InfoLevel:  "INFO",
	DebugLevel: "DEBUG",
	TraceLevel: "TRACE",
}

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	successColor = color.New(color.FgGreen)
)

// FileOptions controls the rotated log file.
type FileOptions struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger provides levelled console logging plus an optional rotated log file
type Logger struct {
	level      Level
	mu         sync.Mutex
	stdout     io.Writer
	stderr     io.Writer
	rotator    *lumberjack.Logger
	fileLogger *log.Logger
}

// New creates a logger writing to the console and, when opts.Dir is set, to
// coverage-browser.log inside it.
func New(level Level, opts FileOptions) (*Logger, error) {
	l := &Logger{
		level:  level,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}

		l.rotator = &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "coverage-browser.log"),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		l.fileLogger = log.New(l.rotator, "", log.LstdFlags)
	}

	return l, nil
}

// NewWithWriters creates a console-only logger on the given writers.
func NewWithWriters(level Level, stdout, stderr io.Writer) *Logger {
	return &Logger{level: level, stdout: stdout, stderr: stderr}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriters(ErrorLevel, io.Discard, io.Discard)
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// log writes a log message
func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level > l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)

	if l.fileLogger != nil {
		l.fileLogger.Printf("[%s] %s", levelNames[level], msg)
	}

	if level == ErrorLevel {
		errorColor.Fprintf(l.stderr, "❌ %s\n", msg)
	} else {
		fmt.Fprintf(l.stdout, "%s\n", msg)
	}
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ErrorLevel, format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(InfoLevel, format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DebugLevel, format, args...)
}

// Trace logs a trace message
func (l *Logger) Trace(format string, args ...interface{}) {
	l.log(TraceLevel, format, args...)
}

// always writes a message that ignores the verbosity level.
func (l *Logger) always(tag, prefix string, c *color.Color, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)

	if l.fileLogger != nil {
		l.fileLogger.Printf("[%s] %s", tag, msg)
	}

	if c != nil {
		c.Fprintf(l.stdout, "%s %s\n", prefix, msg)
		return
	}
	fmt.Fprintf(l.stdout, "%s %s\n", prefix, msg)
}

// Progress logs a progress message (always shown)
func (l *Logger) Progress(format string, args ...interface{}) {
	l.always("PROGRESS", "⏳", nil, format, args...)
}

// Success logs a success message (always shown)
func (l *Logger) Success(format string, args ...interface{}) {
	l.always("SUCCESS", "✅", successColor, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.always("WARNING", "⚠️ ", warningColor, format, args...)
}

// Since logs how long an operation took at debug level.
func (l *Logger) Since(what string, start time.Time) {
	l.Debug("%s took %v", what, time.Since(start).Round(time.Millisecond))
}

// ParseLevel parses a string into a log level
func ParseLevel(s string) (Level, error) {
	switch s {
	case "error":
		return ErrorLevel, nil
	case "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	case "trace":
		return TraceLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level: %s (valid: error, info, debug, trace)", s)
	}
}
