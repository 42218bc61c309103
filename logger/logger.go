package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger initializes and returns a Zap logger with Lumberjack for
// log rotation. n names the log file.
func InitLogger(n string) *zap.Logger {
	return initLogger(n, zap.InfoLevel)
}

// InitDebugLogger is InitLogger at debug level, for examples and local
// troubleshooting of compaction passes.
func InitDebugLogger(n string) *zap.Logger {
	return initLogger(n, zap.DebugLevel)
}

func initLogger(n string, level zapcore.Level) *zap.Logger {
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   fmt.Sprintf("logs/%s.log", n),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	})

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		w,
		level,
	)

	return zap.New(core, zap.AddCaller())
}
