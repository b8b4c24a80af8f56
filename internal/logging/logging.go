// Package logging builds the structured logger shared by every subsystem.
// Where the teacher hand-rolls a component-tagged console logger
// (kernel/utils.Logger), this port uses go.uber.org/zap and reproduces only
// the configuration surface the controller actually needs: a level, a
// component tag, and a switch between human and JSON encoding.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors the teacher's LogLevel enum (DEBUG/INFO/WARN/ERROR/FATAL).
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case Debug:
		return zapcore.DebugLevel
	case Info:
		return zapcore.InfoLevel
	case Warn:
		return zapcore.WarnLevel
	case Error:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Config configures a top-level logger. JSON selects machine-readable
// output (used when GEOPM_REPORT/GEOPM_TRACE pipe into a log aggregator);
// the default console encoding matches interactive controller runs.
type Config struct {
	Level Level
	JSON  bool
}

// New builds the root *zap.Logger for the controller process. Every
// subsystem derives its own logger via root.With(zap.String("component",
// name)) rather than constructing a new logger, matching the teacher's
// "one Logger per component, created from the Kernel's" wiring.
func New(cfg Config) (*zap.Logger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), cfg.Level.zapLevel())
	return zap.New(core, zap.AddCaller()), nil
}

// Component returns a child logger tagged with the given component name,
// the direct analogue of utils.LoggerConfig.Component.
func Component(root *zap.Logger, name string) *zap.Logger {
	return root.With(zap.String("component", name))
}

// Nop returns a logger that discards everything, for tests that don't want
// to assert on log output.
func Nop() *zap.Logger { return zap.NewNop() }
