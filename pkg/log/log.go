// Package log is the logging facade of the tracker daemon. It stays a nop
// until Init runs so the library packages can log unconditionally and the
// tests stay silent.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var zapLog = zap.NewNop()

// Init builds the global logger. Debug selects the console development
// encoder with readable timestamps; the default is JSON with epoch millis
// and a service field, the shape the board's journal collector expects.
func Init(debug bool) {
	var config zap.Config
	var encoderConf zapcore.EncoderConfig

	if debug {
		config = zap.NewDevelopmentConfig()
		encoderConf = zap.NewDevelopmentEncoderConfig()
		encoderConf.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewProductionConfig()
		encoderConf = zap.NewProductionEncoderConfig()
		encoderConf.EncodeTime = zapcore.EpochMillisTimeEncoder

		// Stacktraces are noise on a single goroutine daemon
		config.DisableStacktrace = true
		config.InitialFields = map[string]interface{}{
			"service": "guardtrack",
		}
	}

	config.EncoderConfig = encoderConf

	// Skip one caller frame so the call sites show up, not this package
	var err error
	zapLog, err = config.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
}

// Sync flushes buffered entries, for the deferred shutdown path.
func Sync() {
	_ = zapLog.Sync()
}

func Debug(message string, fields ...zap.Field) {
	zapLog.Debug(message, fields...)
}

func Info(message string, fields ...zap.Field) {
	zapLog.Info(message, fields...)
}

func Warn(message string, fields ...zap.Field) {
	zapLog.Warn(message, fields...)
}

func Error(message string, fields ...zap.Field) {
	zapLog.Error(message, fields...)
}

func Fatal(message string, fields ...zap.Field) {
	zapLog.Fatal(message, fields...)
}

func Panic(message string, fields ...zap.Field) {
	zapLog.Panic(message, fields...)
}
