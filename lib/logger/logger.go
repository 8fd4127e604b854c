package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// --------------------------------------------------------------------------
// Logger Interface
// --------------------------------------------------------------------------

// ILogger is the logging interface used by all packages of this module.
// Loggers are obtained with GetLogger and identified by a package name.
type ILogger interface {
	SetLevel(level Level)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Level is the severity threshold of a logger.
type Level int8

const (
	DEBUG Level = iota
	INFO
	WARNING
	ERROR
)

// ParseLevel converts a string level to a Level.
// It panics on unknown input since a misconfigured log level is a
// startup error, not a runtime condition.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warning", "warn":
		return WARNING
	case "error":
		return ERROR
	default:
		panic("invalid log level: " + level + ". must be one of debug, info, warn, error")
	}
}

// --------------------------------------------------------------------------
// Zap-backed implementation
// --------------------------------------------------------------------------

type rkvLogger struct {
	name  string
	level zap.AtomicLevel
	sugar *zap.SugaredLogger
}

func (l *rkvLogger) SetLevel(level Level) {
	switch level {
	case DEBUG:
		l.level.SetLevel(zapcore.DebugLevel)
	case INFO:
		l.level.SetLevel(zapcore.InfoLevel)
	case WARNING:
		l.level.SetLevel(zapcore.WarnLevel)
	case ERROR:
		l.level.SetLevel(zapcore.ErrorLevel)
	}
}

func (l *rkvLogger) Debugf(format string, args ...interface{})   { l.sugar.Debugf(format, args...) }
func (l *rkvLogger) Infof(format string, args ...interface{})    { l.sugar.Infof(format, args...) }
func (l *rkvLogger) Warningf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }
func (l *rkvLogger) Errorf(format string, args ...interface{})   { l.sugar.Errorf(format, args...) }

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	mu      sync.Mutex
	loggers = map[string]*rkvLogger{}
)

// GetLogger returns the named logger, creating it on first use.
// Loggers default to INFO level until SetLevel or SetAllLevels is called.
func GetLogger(pkgName string) ILogger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[pkgName]; ok {
		return l
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		level,
	)

	l := &rkvLogger{
		name:  pkgName,
		level: level,
		sugar: zap.New(core).Named(pkgName).Sugar(),
	}
	loggers[pkgName] = l
	return l
}

// SetAllLevels applies one level to every logger created so far.
// Loggers created afterwards start at INFO again.
func SetAllLevels(level Level) {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		l.SetLevel(level)
	}
}
