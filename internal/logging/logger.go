// Package logging provides the structured logger shared by the engine and
// the command line tool.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string

	// Format is the output format (json, console)
	Format string

	// Output defaults to os.Stderr. Stdout carries command output.
	Output io.Writer
}

// DefaultConfig returns default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "console",
		Output: os.Stderr,
	}
}

// Logger wraps zap.Logger with a dynamically adjustable level.
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// New creates a Logger from cfg.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	level := zap.NewAtomicLevelAt(ParseLevel(cfg.Level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(cfg.Output), level)

	return &Logger{
		Logger: zap.New(core),
		level:  level,
	}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{
		Logger: zap.NewNop(),
		level:  zap.NewAtomicLevelAt(zapcore.FatalLevel),
	}
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLevel dynamically sets the log level.
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(ParseLevel(level))
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() zapcore.Level {
	return l.level.Level()
}

// With returns a child Logger carrying fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
		level:  l.level,
	}
}

// Named returns a child Logger with a name segment appended.
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		Logger: l.Logger.Named(name),
		level:  l.level,
	}
}

// Context key for logger.
type contextKey struct{}

// WithContext returns a new context carrying logger.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger from ctx, or the default logger.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return defaultLogger
}

var defaultLogger = New(DefaultConfig())

// Default returns the default logger.
func Default() *Logger {
	return defaultLogger
}

// SetDefault replaces the default logger.
func SetDefault(logger *Logger) {
	defaultLogger = logger
	zap.ReplaceGlobals(logger.Logger)
}

// Common log field keys.
const (
	KeyPuzzleID  = "puzzle_id"
	KeyRemaining = "remaining"
	KeyTotal     = "total"
	KeyRate      = "rate"
	KeyDuration  = "duration"
	KeyBits      = "bits"
	KeyPath      = "path"
)

// PuzzleID returns a puzzle ID field.
func PuzzleID(id string) zap.Field {
	return zap.String(KeyPuzzleID, id)
}

// Remaining returns a remaining-iterations field.
func Remaining(n uint64) zap.Field {
	return zap.Uint64(KeyRemaining, n)
}

// Total returns a total-iterations field.
func Total(n uint64) zap.Field {
	return zap.Uint64(KeyTotal, n)
}

// Rate returns a squarings-per-second field.
func Rate(r uint64) zap.Field {
	return zap.Uint64(KeyRate, r)
}

// Duration returns a duration field.
func Duration(d time.Duration) zap.Field {
	return zap.Duration(KeyDuration, d)
}

// Path returns a file path field.
func Path(p string) zap.Field {
	return zap.String(KeyPath, p)
}

// Err returns an error field.
func Err(err error) zap.Field {
	return zap.Error(err)
}
