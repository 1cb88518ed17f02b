// Package logger provides the structured logging entry point shared by every
// nlbwmon-go component. It wraps go.uber.org/zap the same way the rest of the
// codebase configures its subsystems: a small constructor that returns a
// ready-to-use SugaredLogger, named after the calling component.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-profile zap logger scoped to service, e.g.
// "nlbwmond.ingest" or "nlbw.report". Components receive the returned
// logger through their Config struct rather than reaching for a global.
func New(service string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build()
	if err != nil {
		// Logger construction failing indicates a broken process environment
		// (e.g. stderr closed); fall back to a no-op logger rather than panic.
		log = zap.NewNop()
	}

	return log.Named(service).Sugar()
}

// NewDevelopment returns a human-readable console logger, used by nlbwmond
// when started with --dev-log.
func NewDevelopment(service string) *zap.SugaredLogger {
	log, err := zap.NewDevelopment()
	if err != nil {
		log = zap.NewNop()
	}
	return log.Named(service).Sugar()
}
