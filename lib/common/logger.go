package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger names used across the module
const (
	LoggerStore  = "store"
	LoggerEngine = "engine"
	LoggerCodec  = "codec"
	LoggerCLI    = "cli"
	LoggerBadger = "badger"
)

// Log formats
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// zapLogger implements the ILogger interface on top of a zap logger.
// The level is kept here so that SetLevel works per logger name, zap itself logs everything.
type zapLogger struct {
	mu    sync.RWMutex
	level logger.LogLevel
	sugar *zap.SugaredLogger
}

func (l *zapLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *zapLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *zapLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.sugar.Debugf(format, args...)
	}
}

func (l *zapLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.sugar.Infof(format, args...)
	}
}

func (l *zapLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.sugar.Warnf(format, args...)
	}
}

func (l *zapLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.sugar.Errorf(format, args...)
	}
}

func (l *zapLogger) Panicf(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// NewZapLogger creates the zap logger all named loggers write through.
// format is LogFormatConsole or LogFormatJSON.
func NewZapLogger(w io.Writer, format string) (*zap.Logger, error) {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format(time.RFC3339))
	}
	config.EncodeDuration = func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(d.String())
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(format) {
	case "", LogFormatConsole:
		config.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(config)
	case LogFormatJSON:
		encoder = zapcore.NewJSONEncoder(config)
	default:
		return nil, fmt.Errorf("invalid log format: %s. must be one of %s, %s", format, LogFormatConsole, LogFormatJSON)
	}

	return zap.New(zapcore.NewCore(
		encoder,
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.DebugLevel,
	)), nil
}

// NewLoggerFactory returns a dragonboat logger factory whose loggers are named children of base
func NewLoggerFactory(base *zap.Logger) logger.Factory {
	return func(pkgName string) logger.ILogger {
		return &zapLogger{
			level: logger.INFO,
			sugar: base.Named(pkgName).Sugar(),
		}
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers routes all loggers through zap (written to stderr, stdout belongs to
// command output) and sets their levels from the config.
// Badger is very chatty, it never logs below WARNING unless debug logging is requested.
func InitLoggers(config Config) error {
	level, err := ParseLogLevel(config.LogLevel)
	if err != nil {
		return err
	}
	base, err := NewZapLogger(os.Stderr, config.LogFormat)
	if err != nil {
		return err
	}

	logger.SetLoggerFactory(NewLoggerFactory(base))

	for _, name := range []string{LoggerStore, LoggerEngine, LoggerCodec, LoggerCLI} {
		logger.GetLogger(name).SetLevel(level)
	}
	badgerLevel := logger.WARNING
	if level == logger.DEBUG || level < badgerLevel {
		badgerLevel = level
	}
	logger.GetLogger(LoggerBadger).SetLevel(badgerLevel)
	return nil
}
