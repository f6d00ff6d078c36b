package configuration

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type config struct {
	lock     sync.RWMutex
	humanLog *zap.SugaredLogger
}

// EnvConfigFile environment variable pointing to config file
const EnvConfigFile = "MQCORE_CONFIG"

var cfg config

func init() {
	// initialize startup logger
	logCfg := zap.NewProductionConfig()

	logCfg.DisableStacktrace = true
	logCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	logCfg.EncoderConfig.LevelKey = ""
	logCfg.EncoderConfig.CallerKey = ""
	logCfg.Encoding = "console"
	logCfg.EncoderConfig.EncodeTime = func(t time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(t.Format(time.RFC3339))
	}

	log, err := logCfg.Build()
	if err != nil {
		log = zap.NewNop()
	}

	cfg.humanLog = log.Sugar()
}

// ConfigFile returns config file path provided via environment
func ConfigFile() string {
	file, _ := os.LookupEnv(EnvConfigFile)
	return file
}

// GetLogger return production logger
func GetLogger() *zap.SugaredLogger {
	cfg.lock.RLock()
	defer cfg.lock.RUnlock()

	return cfg.humanLog
}

// SetLogger replace process logger. Used by tests to silence output
func SetLogger(l *zap.SugaredLogger) {
	cfg.lock.Lock()
	cfg.humanLog = l
	cfg.lock.Unlock()
}

var configTimeFormatMap = map[string]string{
	"ANSIC":       time.ANSIC,
	"UNIX":        time.UnixDate,
	"RubyDate":    time.RubyDate,
	"RFC822":      time.RFC822,
	"RFC822Z":     time.RFC822Z,
	"RFC850":      time.RFC850,
	"RFC1123":     time.RFC1123,
	"RFC1123Z":    time.RFC1123Z,
	"RFC3339":     time.RFC3339,
	"RFC3339Nano": time.RFC3339Nano,
}

// ConfigureLoggers builds console logger from config
// errors and above are written to stderr, rest to stdout
func ConfigureLoggers(c *LogConfig) error {
	logCfg := zap.NewDevelopmentEncoderConfig()

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Console.Level)); err != nil {
		return err
	}

	if c.Console.Timestamp != nil {
		format, ok := configTimeFormatMap[c.Console.Timestamp.Format]
		if !ok {
			GetLogger().Warn("unsupported time format supplied by config. using RFC3339")
			format = time.RFC3339
		}

		logCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format(format))
		}
	} else {
		logCfg.EncodeTime = nil
	}

	logCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logCfg.StacktraceKey = ""
	consoleEncoder := zapcore.NewConsoleEncoder(logCfg)

	consoleDebugging := zapcore.Lock(os.Stdout)
	consoleErrors := zapcore.Lock(os.Stderr)

	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel && lvl >= level
	})
	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl < zapcore.ErrorLevel && lvl >= level
	})

	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, consoleErrors, highPriority),
		zapcore.NewCore(consoleEncoder, consoleDebugging, lowPriority))

	SetLogger(zap.New(core).Sugar())

	return nil
}
