package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/funnyzak/replaytap/internal/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger logging interface
type Logger interface {
	// Debug logs a Debug event.
	Debug(msg string, fields ...interface{})
	// Info logs an Info event.
	Info(msg string, fields ...interface{})
	// Warn logs a Warn event.
	Warn(msg string, fields ...interface{})
	// Error logs an Error event.
	Error(msg string, fields ...interface{})
	// Fatal logs a Fatal event and terminates the program.
	Fatal(msg string, fields ...interface{})
	// With returns a child logger that adds fields to every event.
	With(fields ...interface{}) Logger
}

// zerologAdapter zerolog adapter
type zerologAdapter struct {
	logger zerolog.Logger
}

// addFields adds key-value pairs to a zerolog event or context
func addFields[T interface {
	Str(string, string) T
	Int(string, int) T
	Int64(string, int64) T
	Float64(string, float64) T
	Bool(string, bool) T
	Dur(string, time.Duration) T
	AnErr(string, error) T
	Strs(string, []string) T
	Interface(string, interface{}) T
}](target T, fields ...interface{}) T {
	for i := 0; i < len(fields)-1; i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}

		switch v := fields[i+1].(type) {
		case string:
			target = target.Str(key, v)
		case int:
			target = target.Int(key, v)
		case int64:
			target = target.Int64(key, v)
		case float64:
			target = target.Float64(key, v)
		case bool:
			target = target.Bool(key, v)
		case time.Duration:
			target = target.Dur(key, v)
		case error:
			target = target.AnErr(key, v)
		case []string:
			target = target.Strs(key, v)
		default:
			target = target.Interface(key, v)
		}
	}
	return target
}

// Debug implements Logger
func (z *zerologAdapter) Debug(msg string, fields ...interface{}) {
	addFields(z.logger.Debug(), fields...).Msg(msg)
}

// Info implements Logger
func (z *zerologAdapter) Info(msg string, fields ...interface{}) {
	addFields(z.logger.Info(), fields...).Msg(msg)
}

// Warn implements Logger
func (z *zerologAdapter) Warn(msg string, fields ...interface{}) {
	addFields(z.logger.Warn(), fields...).Msg(msg)
}

// Error implements Logger
func (z *zerologAdapter) Error(msg string, fields ...interface{}) {
	addFields(z.logger.Error(), fields...).Msg(msg)
}

// Fatal implements Logger
func (z *zerologAdapter) Fatal(msg string, fields ...interface{}) {
	addFields(z.logger.Fatal(), fields...).Msg(msg)
}

// With implements Logger
func (z *zerologAdapter) With(fields ...interface{}) Logger {
	return &zerologAdapter{logger: addFields(z.logger.With(), fields...).Logger()}
}

// NewLogger creates new logger instance.
// Console output goes to stderr so that stdout stays reserved for replay
// output (JSON lines in json mode).
func NewLogger(cfg *config.LogConfig, outputMode string) Logger {
	var writers []io.Writer

	if strings.ToLower(outputMode) == "json" {
		writers = append(writers, os.Stderr)
	} else {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02 15:04:05",
		})
	}

	// File logging uses JSON format
	if cfg.FileLogging.Enable {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FileLogging.Path,
			MaxSize:    cfg.FileLogging.MaxSizeMB,
			MaxBackups: cfg.FileLogging.MaxBackups,
			MaxAge:     cfg.FileLogging.MaxAgeDays,
			Compress:   cfg.FileLogging.Compress,
		})
	}

	return New(io.MultiWriter(writers...), cfg.Level)
}

// New creates a logger writing JSON events to w at the given level.
func New(w io.Writer, level string) Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	logger := zerolog.New(w).Level(logLevel).With().Timestamp().Logger()
	return &zerologAdapter{logger: logger}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &zerologAdapter{logger: zerolog.Nop()}
}
