// Package logger builds the zap loggers used by the lmfs daemons.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	// debug, info, warn or error; anything else means info
	Level string `yaml:"level"`
	// json or console
	Format string `yaml:"format"`
	// a file name, or stdout / stderr
	OutputFile string `yaml:"output_file"`
}

// New returns a logger tagged with the given service name.
func New(config Config, service string) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(config.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}
	ws, err := writeSyncer(config.OutputFile)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(encoder(config.Format), ws, level)
	return zap.New(core, zap.AddCaller()).
		WithOptions(zap.Fields(zap.String("service", service))), nil
}

func encoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if strings.ToLower(format) == "console" {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func writeSyncer(out string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(out) {
	case "stderr", "":
		return zapcore.AddSync(os.Stderr), nil
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open log file %s: %w", out, err)
	}
	return zapcore.AddSync(f), nil
}
