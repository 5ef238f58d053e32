package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger *zap.Logger

// stderr получает только ошибки; в режиме debug туда идут все записи
var stderr zapcore.WriteSyncer = zapcore.Lock(os.Stderr)

var closeFile func()

// Initialize инициализирует глобальный логгер.
// Все записи уровня level пишутся в file, в начале каждого часа файл очищается.
// В stderr попадают только ошибки, чтобы запуск из cron оставался тихим.
func Initialize(level, file string) error {
	lvl := parseLevel(level)

	encoderConfig := zap.NewProductionEncoderConfig()
	// Настраиваем формат времени
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	consoleLevel := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.ErrorLevel && l >= lvl
	})
	consoleEncoder := encoder
	if level == "debug" {
		consoleLevel = zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= lvl })
		devConfig := zap.NewDevelopmentEncoderConfig()
		devConfig.TimeKey = "timestamp"
		devConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(devConfig)
	}

	cores := []zapcore.Core{zapcore.NewCore(consoleEncoder, stderr, consoleLevel)}

	if file != "" {
		if err := ResetHourly(file, time.Now()); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		sink, closeSink, err := zap.Open(file)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		closeFile = closeSink
		cores = append(cores, zapcore.NewCore(encoder, sink, lvl))
	}

	Logger = zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel))

	return nil
}

// ResetHourly удаляет файл лога в нулевую минуту часа, чтобы он не рос бесконечно
func ResetHourly(path string, now time.Time) error {
	if now.Minute() != 0 {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to reset log file: %w", err)
	}
	return nil
}

// parseLevel конвертирует строку в zapcore.Level
func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Cleanup корректно закрывает логгер
func Cleanup() {
	if Logger != nil {
		_ = Logger.Sync()
	}
	if closeFile != nil {
		closeFile()
		closeFile = nil
	}
}
