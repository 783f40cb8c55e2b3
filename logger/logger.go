// Package logger provides the structured logging interface used by every
// component of the ingestion service, backed by zerolog. Output goes to
// stdout and, optionally, to daily-rotated files with a retention window.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Field represents a key-value pair for structured log output.
type Field struct {
	Key   string
	Value any
}

// Logger is an interface for structured logging. Loggers may be derived with
// With for connection-scoped or worker-scoped fields.
type Logger interface {
	// Debug logs a message at debug level with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs a message at info level with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs a message at error level with optional structured fields.
	Error(msg string, fields ...Field)

	// With returns a new Logger that includes the given fields in all
	// subsequent log entries. The original Logger is unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs to attach to the derived logger
	//
	// Returns:
	//   - A new Logger with the specified fields
	With(fields ...Field) Logger

	// Close releases resources held by the logger (e.g. file handles).
	// It is safe to call multiple times. Derived loggers never close the
	// underlying file.
	Close() error
}

// Options configures New.
type Options struct {
	// Service is added as the "service" field to every entry and used as the
	// log file name prefix.
	Service string
	// Level is the minimum level written.
	Level zerolog.Level
	// Dir enables daily file output when non-empty.
	Dir string
	// RetentionDays is how many daily files are kept; 0 keeps everything.
	RetentionDays int
	// Stdout overrides the console writer (tests); defaults to os.Stdout.
	Stdout io.Writer
}

// zerologLogger is the zerolog-based implementation of Logger.
type zerologLogger struct {
	logger         zerolog.Logger
	fileWriter     *DailyFileWriter
	ownsFileWriter bool
}

// New builds a Logger from opts. When opts.Dir is set the directory is
// created and entries are duplicated into {service}_{date}.log files.
//
// Parameters:
//   - opts: Service name, level, optional file directory and retention
//
// Returns:
//   - The Logger, or an error if the log directory or file cannot be opened
func New(opts Options) (Logger, error) {
	console := opts.Stdout
	if console == nil {
		console = os.Stdout
	}

	if opts.Dir == "" {
		return NewZerologLogger(zerolog.New(console), opts.Service, opts.Level), nil
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	fileWriter, err := NewDailyFileWriter(opts.Service, opts.Dir, opts.RetentionDays)
	if err != nil {
		return nil, fmt.Errorf("failed to create file writer: %w", err)
	}

	multi := io.MultiWriter(console, fileWriter)
	return &zerologLogger{
		logger:         zerolog.New(multi).With().Str("service", opts.Service).Timestamp().Logger().Level(opts.Level),
		fileWriter:     fileWriter,
		ownsFileWriter: true,
	}, nil
}

// NewZerologLogger wraps an existing zerolog.Logger, adding the service name
// and a timestamp to all entries and filtering by level.
func NewZerologLogger(l zerolog.Logger, serviceName string, level zerolog.Level) Logger {
	return &zerologLogger{
		logger: l.With().Str("service", serviceName).Timestamp().Logger().Level(level),
	}
}

// NewNop returns a Logger that discards everything.
func NewNop() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

// ParseLevel maps a config level name (debug, info, warn, error) to a
// zerolog level. Matching is case-insensitive.
func ParseLevel(name string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// Debug implements Logger.
func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

// Info implements Logger.
func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

// Warn implements Logger.
func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

// Error implements Logger.
func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

// With implements Logger.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger:         z.logger.With().Fields(toMap(fields)).Logger(),
		fileWriter:     z.fileWriter,
		ownsFileWriter: false,
	}
}

// Close implements Logger.
func (z *zerologLogger) Close() error {
	if z.fileWriter != nil && z.ownsFileWriter {
		return z.fileWriter.Close()
	}

	return nil
}

// toMap converts a slice of Field into a map for zerolog. Error values are
// rendered as strings so they survive JSON encoding.
func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok && err != nil {
			m[f.Key] = err.Error()
			continue
		}
		m[f.Key] = f.Value
	}

	return m
}
