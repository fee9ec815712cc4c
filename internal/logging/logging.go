// Package logging builds the process-wide zap logger and hands out named
// child loggers per pipeline stage. Stage names mirror the pipeline's
// moving parts so a failing run can be read stage by stage: batch, llm,
// retry, fetch, synth, compile.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Stage names used across the pipeline.
const (
	StageBatch    = "batch"
	StageLLM      = "llm"
	StageRetry    = "retry"
	StageFetch    = "fetch"
	StageSynth    = "synth"
	StageCompile  = "compile"
	StagePipeline = "pipeline"
)

// Options configures the root logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	File   string // optional rotating log file; stderr when empty
}

// New builds the root logger. When a file is configured, output rotates
// via lumberjack so long-running generation hosts do not fill their disk.
func New(opts Options) (*zap.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if opts.Format == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var sink zapcore.WriteSyncer
	if opts.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	} else {
		sink = zapcore.Lock(os.Stderr)
	}

	core := zapcore.NewCore(encoder, sink, level)
	return zap.New(core), nil
}

// Stage returns a named child logger for one pipeline stage.
func Stage(root *zap.Logger, stage string) *zap.Logger {
	if root == nil {
		return zap.NewNop()
	}
	return root.Named(stage)
}

func parseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
