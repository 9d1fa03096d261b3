package utils

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects where and how verbosely the process logs.
type LogConfig struct {
	Dir   string
	Level string
	Tee   bool
}

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
)

// InitLogger installs a JSON logger writing to <dir>/wrms.log, rotated by
// lumberjack. When Tee is set the same events are also written to stdout in
// console format. An empty Dir logs to stdout only.
func InitLogger(cfg LogConfig) (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		NameKey:      "component",
		MessageKey:   "msg",
		CallerKey:    "caller",
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.LowercaseLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	var cores []zapcore.Core
	errorOutput := zapcore.AddSync(os.Stderr)
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, err
		}
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, "wrms.log"),
			MaxSize:    50, // MB
			MaxBackups: 7,
			MaxAge:     14, // days
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileSink, level))
		errorOutput = fileSink
	}
	if cfg.Tee || cfg.Dir == "" {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stdout), level))
	}

	z := zap.New(zapcore.NewTee(cores...), zap.ErrorOutput(errorOutput)).Sugar()
	zap.ReplaceGlobals(z.Desugar())

	mu.Lock()
	logger = z
	mu.Unlock()
	return z, nil
}

// Logger returns the process-wide logger.
func Logger() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Named returns a child logger tagged with a component name.
func Named(component string) *zap.SugaredLogger {
	return Logger().Named(component)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Logger().Sync()
}

func LogInfo(message string, args ...interface{}) {
	Logger().Infof(message, args...)
}

func LogWarn(message string, args ...interface{}) {
	Logger().Warnf(message, args...)
}

func LogError(message string, args ...interface{}) {
	Logger().Errorf(message, args...)
}
