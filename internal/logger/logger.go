package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or console
	Output       string `json:"output"` // stdout, stderr, or file path
	EnableCaller bool   `json:"enable_caller"`
	Environment  string `json:"environment"` // development, staging, production
}

// NewLogger creates a new structured logger based on configuration
func NewLogger(config Config) (*zap.Logger, error) {
	level := zap.InfoLevel
	if config.Level != "" {
		if err := level.UnmarshalText([]byte(config.Level)); err != nil {
			return nil, err
		}
	}

	var encoderConfig zapcore.EncoderConfig
	if config.Environment == "production" {
		encoderConfig = zap.NewProductionEncoderConfig()
	} else {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	encoderConfig.TimeKey = "timestamp"
	encoderConfig.LevelKey = "level"
	encoderConfig.MessageKey = "message"
	encoderConfig.CallerKey = "caller"
	encoderConfig.StacktraceKey = "stacktrace"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var encoder zapcore.Encoder
	if config.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var writeSyncer zapcore.WriteSyncer
	switch config.Output {
	case "stdout", "":
		writeSyncer = zapcore.AddSync(os.Stdout)
	case "stderr":
		writeSyncer = zapcore.AddSync(os.Stderr)
	default:
		if err := os.MkdirAll(filepath.Dir(config.Output), 0755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		writeSyncer = zapcore.AddSync(file)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)

	var options []zap.Option
	if config.EnableCaller {
		options = append(options, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	if config.Environment == "production" {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	} else {
		options = append(options, zap.AddStacktrace(zapcore.WarnLevel))
	}

	log := zap.New(core, options...)

	log = log.With(
		zap.String("service", "icxcommander"),
		zap.String("environment", config.Environment),
	)

	return log, nil
}

// NewDevelopmentLogger creates a logger optimized for development
func NewDevelopmentLogger() (*zap.Logger, error) {
	return NewLogger(Config{
		Level:        "debug",
		Format:       "console",
		Output:       "stdout",
		EnableCaller: true,
		Environment:  "development",
	})
}

// NewProductionLogger creates a logger optimized for production
func NewProductionLogger(outputPath string) (*zap.Logger, error) {
	return NewLogger(Config{
		Level:        "info",
		Format:       "json",
		Output:       outputPath,
		EnableCaller: false,
		Environment:  "production",
	})
}
