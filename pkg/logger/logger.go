package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a sugared zap logger and the atomic level behind it; setting
// the level later changes verbosity of the running logger. level is parsed
// with ParseLevel. GO_ENV=production selects the JSON encoder, anything else
// the console one.
func New(level string) (*zap.SugaredLogger, zap.AtomicLevel) {
	atom := zap.NewAtomicLevelAt(ParseLevel(level))

	var cfg zap.Config
	if isProd() {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = atom
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		panic(err) // only reachable with a broken encoder config
	}
	return logger.Sugar(), atom
}

// Sync flushes buffered entries; call it before exit.
// The error from zap.Sync is ignored: stdout/stderr return "invalid argument"
// on several platforms.
func Sync(l *zap.SugaredLogger) {
	if l == nil {
		return
	}
	_ = l.Sync()
}

// ParseLevel maps a level name to zapcore.Level, defaulting to info.
func ParseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	case "fatal":
		return zap.FatalLevel
	case "panic":
		return zap.PanicLevel
	default:
		return zap.InfoLevel
	}
}

func isProd() bool {
	v := strings.Trim(strings.TrimSpace(os.Getenv("GO_ENV")), "\"")
	return strings.EqualFold(v, "production")
}
