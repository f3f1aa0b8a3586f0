package logx

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Fields is a set of structured log fields.
type Fields map[string]any

// Logger is a leveled structured logger.
type Logger struct {
	mu        sync.Mutex
	level     Level
	formatter Formatter
	writer    io.Writer
	exitFunc  func(int)
}

// Config holds logger configuration.
type Config struct {
	Level  Level
	Format Format
	Output io.Writer
}

// LoadFromEnv builds a Config from LOG_LEVEL and LOG_FORMAT.
func LoadFromEnv() *Config {
	cfg := &Config{
		Level:  ParseLevel(os.Getenv("LOG_LEVEL")),
		Format: FormatConsole,
		Output: os.Stdout,
	}
	if os.Getenv("LOG_FORMAT") == "json" {
		cfg.Format = FormatJSON
	}
	return cfg
}

// NewLogger creates a logger from config.
func NewLogger(cfg *Config) *Logger {
	if cfg == nil {
		cfg = &Config{Level: LevelInfo, Format: FormatConsole, Output: os.Stdout}
	}

	var formatter Formatter
	switch cfg.Format {
	case FormatJSON:
		formatter = &jsonFormatter{}
	default:
		formatter = &consoleFormatter{}
	}

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}

	return &Logger{
		level:     cfg.Level,
		formatter: formatter,
		writer:    writer,
		exitFunc:  os.Exit,
	}
}

// SetLevel sets the minimum level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput redirects log output.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer = w
}

func (l *Logger) log(level Level, msg string, fields Fields, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	entry := &Record{
		Level:     level,
		Message:   msg,
		Timestamp: time.Now(),
		Fields:    fields,
		Error:     err,
	}

	line, ferr := l.formatter.Format(entry)
	if ferr != nil {
		fmt.Fprintf(os.Stderr, "logx: format error: %v\n", ferr)
		return
	}
	l.writer.Write(line)
}

func (l *Logger) exit(code int) {
	l.exitFunc(code)
}

// Record is a single log event handed to a Formatter.
type Record struct {
	Level     Level
	Message   string
	Timestamp time.Time
	Fields    Fields
	Error     error
}

// Formatter renders a record into an output line.
type Formatter interface {
	Format(*Record) ([]byte, error)
}

var defaultLogger = NewLogger(LoadFromEnv())

// SetDefaultLogger replaces the package-level logger.
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

// SetLevel sets the level of the package-level logger.
func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}

// Debug logs a debug message on the default logger.
func Debug(msg string) { defaultLogger.log(LevelDebug, msg, nil, nil) }

// Info logs an info message on the default logger.
func Info(msg string) { defaultLogger.log(LevelInfo, msg, nil, nil) }

// Warn logs a warning on the default logger.
func Warn(msg string) { defaultLogger.log(LevelWarn, msg, nil, nil) }

// Error logs an error message on the default logger.
func Error(msg string) { defaultLogger.log(LevelError, msg, nil, nil) }

// Fatal logs a fatal message and exits.
func Fatal(msg string) {
	defaultLogger.log(LevelFatal, msg, nil, nil)
	defaultLogger.exit(1)
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...any) {
	defaultLogger.log(LevelDebug, fmt.Sprintf(format, args...), nil, nil)
}

// Infof logs a formatted info message.
func Infof(format string, args ...any) {
	defaultLogger.log(LevelInfo, fmt.Sprintf(format, args...), nil, nil)
}

// Warnf logs a formatted warning.
func Warnf(format string, args ...any) {
	defaultLogger.log(LevelWarn, fmt.Sprintf(format, args...), nil, nil)
}

// Errorf logs a formatted error message.
func Errorf(format string, args ...any) {
	defaultLogger.log(LevelError, fmt.Sprintf(format, args...), nil, nil)
}

// Fatalf logs a formatted fatal message and exits.
func Fatalf(format string, args ...any) {
	defaultLogger.log(LevelFatal, fmt.Sprintf(format, args...), nil, nil)
	defaultLogger.exit(1)
}

// WithField starts an entry with one field on the default logger.
func WithField(key string, value any) *Entry {
	return newEntry(defaultLogger).WithField(key, value)
}

// WithFields starts an entry with fields on the default logger.
func WithFields(fields Fields) *Entry {
	return newEntry(defaultLogger).WithFields(fields)
}

// WithError starts an entry with an error on the default logger.
func WithError(err error) *Entry {
	return newEntry(defaultLogger).WithError(err)
}
