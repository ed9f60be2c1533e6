// Package log provides structured logging with session context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the reader path (structured fields)
//   - SugaredLogger: Printf-style logging for CLI and shell surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/justapithecus/mk0link/types"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configures encoder and level.
type Options struct {
	// Format is FormatJSON (default) or FormatConsole.
	Format string
	// Level is the minimum zap level name ("debug", "info", ...). Empty means debug.
	Level string
}

// Logger provides structured logging with session context.
// All log entries include the session identity fields.
type Logger struct {
	zap  *zap.Logger
	base zapcore.Core
	meta *types.SessionMeta
	opts Options
}

// SugaredLogger provides printf-style logging for CLI and shell surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a JSON logger with session context writing to os.Stderr.
func NewLogger(meta *types.SessionMeta) *Logger {
	return NewLoggerWithOptions(meta, os.Stderr, Options{})
}

// NewLoggerWithOptions creates a logger writing to w.
// A nil meta produces a logger without session fields.
func NewLoggerWithOptions(meta *types.SessionMeta, w io.Writer, opts Options) *Logger {
	return newLogger(newCore(w, opts), meta, opts)
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return newLogger(zapcore.NewNopCore(), nil, Options{})
}

func newLogger(base zapcore.Core, meta *types.SessionMeta, opts Options) *Logger {
	z := zap.New(base)
	if meta != nil {
		z = z.With(sessionFields(meta)...)
	}
	return &Logger{zap: z, base: base, meta: meta, opts: opts}
}

// WithOutput returns a new logger with a different output writer.
// Session fields are kept.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return NewLoggerWithOptions(l.meta, w, l.opts)
}

// WithSession returns a logger on the same output carrying meta in place
// of the current session fields.
func (l *Logger) WithSession(meta *types.SessionMeta) *Logger {
	return newLogger(l.base, meta, l.opts)
}

func newCore(w io.Writer, opts Options) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}

	var encoder zapcore.Encoder
	if opts.Format == FormatConsole {
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.ConsoleSeparator = " | "
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	level := zapcore.DebugLevel
	if opts.Level != "" {
		if parsed, err := zapcore.ParseLevel(opts.Level); err == nil {
			level = parsed
		}
	}

	return zapcore.NewCore(encoder, zapcore.AddSync(w), level)
}

func sessionFields(meta *types.SessionMeta) []zap.Field {
	fields := []zap.Field{
		zap.String("session_id", meta.SessionID),
		zap.String("port", meta.Port),
	}
	if meta.BaudRate > 0 {
		fields = append(fields, zap.Int("baud_rate", meta.BaudRate))
	}
	if meta.FirmwareVersion != nil {
		fields = append(fields, zap.String("firmware_version", *meta.FirmwareVersion))
	}
	return fields
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Device emits a rendered device log line at the zap level mapped from the
// device level. TRACE has no zap counterpart and logs at debug.
func (l *Logger) Device(line types.LogLine) {
	fields := []zap.Field{
		zap.String("device_level", line.Level.String()),
		zap.String("hash", strconv.FormatUint(line.Hash, 10)),
	}
	if line.Version != "" {
		fields = append(fields, zap.String("latest_version", line.Version))
	}
	if ce := l.zap.Check(DeviceLevel(line.Level), line.Text); ce != nil {
		ce.Write(fields...)
	}
}

// DeviceLevel maps a device level to a zap level. Unknown levels map to
// info so they are never filtered below the default threshold.
func DeviceLevel(level types.LogLevel) zapcore.Level {
	switch level {
	case types.LogLevelTrace, types.LogLevelDebug:
		return zapcore.DebugLevel
	case types.LogLevelInfo:
		return zapcore.InfoLevel
	case types.LogLevelWarning:
		return zapcore.WarnLevel
	case types.LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
