package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConfig selects level, encoding and sink of the zap backend
type ZapConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
	Output string `yaml:"output"` // stdout, stderr or a file path
}

func DefaultZapConfig() ZapConfig {
	return ZapConfig{
		Level:  "info",
		Format: "console",
		Output: "stdout",
	}
}

// ZapBackend feeds Logger implementations from a sugared zap logger.
type ZapBackend struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	level  zap.AtomicLevel
	close  func()
}

func NewZapBackend(config ZapConfig) (*ZapBackend, error) {
	level, err := ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	atomicLevel := zap.NewAtomicLevelAt(level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	encoderConfig.LevelKey = "level"
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	switch config.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var sink zapcore.WriteSyncer
	closeSink := func() {}
	switch config.Output {
	case "stdout", "":
		sink = zapcore.Lock(zapcore.AddSync(os.Stdout))
	case "stderr":
		sink = zapcore.Lock(zapcore.AddSync(os.Stderr))
	default:
		// Log file plus console
		fileSink, closeFile, err := zap.Open(config.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output %q: %w", config.Output, err)
		}
		sink = zapcore.NewMultiWriteSyncer(fileSink, zapcore.Lock(zapcore.AddSync(os.Stdout)))
		closeSink = closeFile
	}

	logger := zap.New(zapcore.NewCore(encoder, sink, atomicLevel))

	return &ZapBackend{
		logger: logger,
		sugar:  logger.Sugar(),
		level:  atomicLevel,
		close:  closeSink,
	}, nil
}

// ParseLevel maps a config level name onto zap; zap v1.20 has no zapcore.ParseLevel.
func ParseLevel(levelStr string) (zapcore.Level, error) {
	switch levelStr {
	case "debug":
		return zap.DebugLevel, nil
	case "info", "":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("invalid log level: %s", levelStr)
	}
}

func (z *ZapBackend) SetLevel(levelStr string) error {
	level, err := ParseLevel(levelStr)
	if err != nil {
		return err
	}
	z.level.SetLevel(level)
	return nil
}

func (z *ZapBackend) Debugf(format string, args ...interface{}) { z.sugar.Debugf(format, args...) }
func (z *ZapBackend) Infof(format string, args ...interface{})  { z.sugar.Infof(format, args...) }
func (z *ZapBackend) Warnf(format string, args ...interface{})  { z.sugar.Warnf(format, args...) }
func (z *ZapBackend) Errorf(format string, args ...interface{}) { z.sugar.Errorf(format, args...) }

func (z *ZapBackend) Funcs() LogFuncs {
	return LogFuncs{
		Debugf: z.Debugf,
		Infof:  z.Infof,
		Warnf:  z.Warnf,
		Errorf: z.Errorf,
	}
}

// Logger returns a prefixed Logger writing through this backend.
func (z *ZapBackend) Logger(prefix string) Logger {
	return NewLogger(prefix, z.Funcs())
}

func (z *ZapBackend) Sync() error {
	err := z.logger.Sync()
	z.close()
	return err
}
