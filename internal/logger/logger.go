// Package logger wraps zap with the small fixed configuration shape this
// service needs: a level, an optional rotating log file, and a set of
// package-level helpers so call sites don't have to thread a *zap.Logger
// through every function signature.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var log *zap.Logger

// Config controls logger construction. Filename is optional; when empty,
// Init logs to stderr instead of rotating a file.
type Config struct {
	Level      string
	Filename   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func parseLevel(level string) zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// Init builds the package-level logger from cfg. Safe to call more than
// once, e.g. to point at a different file between CLI invocations in tests.
func Init(cfg Config) error {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var writer zapcore.WriteSyncer
	if cfg.Filename != "" {
		writer = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	} else {
		writer = zapcore.Lock(os.Stderr)
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), writer, parseLevel(cfg.Level))
	log = zap.New(core, zap.AddCaller())
	return nil
}

// checkLogger falls back to a default production logger rather than
// panicking, since some entry points may log before Init runs.
func checkLogger() {
	if log == nil {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		log = l
	}
}

func Debug(msg string, fields ...zap.Field) {
	checkLogger()
	log.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	checkLogger()
	log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	checkLogger()
	log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	checkLogger()
	log.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	checkLogger()
	log.Fatal(msg, fields...)
}

// With returns a child logger carrying the given fields on every subsequent
// call. Most call sites use the package-level functions instead; With exists
// for the few spots (a storage backend, a long-lived worker) that log enough
// to warrant binding context once.
func With(fields ...zap.Field) *zap.Logger {
	checkLogger()
	return log.With(fields...)
}

func Sync() error {
	checkLogger()
	return log.Sync()
}

// Field constructors re-exported so call sites only need this package.
func String(key, value string) zap.Field      { return zap.String(key, value) }
func Int(key string, value int) zap.Field     { return zap.Int(key, value) }
func Int64(key string, v int64) zap.Field     { return zap.Int64(key, v) }
func Uint16(key string, v uint16) zap.Field   { return zap.Uint16(key, v) }
func Float64(key string, v float64) zap.Field { return zap.Float64(key, v) }
func Bool(key string, v bool) zap.Field       { return zap.Bool(key, v) }

// Error2 wraps an error field. Named to avoid colliding with the Error log
// function in this package.
func Error2(err error) zap.Field { return zap.Error(err) }
