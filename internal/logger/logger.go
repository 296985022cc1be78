// Package logger monta o *zap.Logger dos binários.
//
// JSON em produção, console (níveis coloridos) em desenvolvimento. O nível fica
// em um zap.AtomicLevel para poder ser trocado em runtime (PUT /admin/log/level).
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New cria o logger.
// level: debug, info, warn, error
// format: json ou console
func New(level, format string) (*zap.Logger, zap.AtomicLevel, error) {
	atomicLevel := zap.NewAtomicLevel()
	if err := atomicLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, atomicLevel, fmt.Errorf("parse log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return nil, atomicLevel, fmt.Errorf("unknown log format %q", format)
	}
	cfg.Level = atomicLevel

	l, err := cfg.Build()
	if err != nil {
		return nil, atomicLevel, fmt.Errorf("build logger: %w", err)
	}
	return l, atomicLevel, nil
}

// Must é New para main(): em erro cai para um logger de produção padrão.
func Must(level, format string) (*zap.Logger, zap.AtomicLevel) {
	l, lvl, err := New(level, format)
	if err == nil {
		return l, lvl
	}
	fallback := zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg := zap.NewProductionConfig()
	cfg.Level = fallback
	l, buildErr := cfg.Build()
	if buildErr != nil {
		return zap.NewNop(), fallback
	}
	l.Warn("invalid log config, using defaults", zap.Error(err))
	return l, fallback
}
