package logger

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sampling per message and level: the first samplingFirst entries of each
// second are written, then every samplingThereafter-th. A Redis outage logs
// one warning per page view and would otherwise flood the output.
const (
	samplingTick       = time.Second
	samplingFirst      = 100
	samplingThereafter = 100
)

// Logger wraps zap logger
type Logger struct {
	*zap.Logger
}

// Options configures New. The zero value writes sampled JSON at info level
// to stdout.
type Options struct {
	Level string
	// Service and Environment are attached to every entry
	Service     string
	Environment string
	// Output defaults to stdout
	Output zapcore.WriteSyncer
}

// New creates a new logger instance. The development environment gets a
// colored console encoder without sampling.
func New(opts Options) (*Logger, error) {
	logLevel := parseLogLevel(opts.Level)
	development := strings.EqualFold(opts.Environment, "development")

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	output := opts.Output
	if output == nil {
		output = zapcore.Lock(os.Stdout)
	}

	core := zapcore.NewCore(encoder, output, logLevel)
	if !development {
		core = zapcore.NewSamplerWithOptions(core, samplingTick, samplingFirst, samplingThereafter)
	}

	var fields []zap.Field
	if opts.Service != "" {
		fields = append(fields, zap.String("service", opts.Service))
	}
	if opts.Environment != "" {
		fields = append(fields, zap.String("environment", opts.Environment))
	}

	zapLogger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel), zap.Fields(fields...))

	return &Logger{Logger: zapLogger}, nil
}

// NewNop returns a logger that discards everything, for tests
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// parseLogLevel parses string log level to zapcore.Level, defaulting to info
func parseLogLevel(level string) zapcore.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}

	parsed, err := zapcore.ParseLevel(level)
	if err != nil || level == "" {
		return zapcore.InfoLevel
	}
	return parsed
}

// Named returns a child logger for a component
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger.Named(component)}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Logger: l.Logger.With(zap.Any(key, value))}
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		zapFields = append(zapFields, zap.Any(key, value))
	}
	return &Logger{Logger: l.Logger.With(zapFields...)}
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With(zap.Error(err))}
}
