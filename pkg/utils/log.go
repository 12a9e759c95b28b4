package utils

import (
	"fmt"
	"sync"

	"github.com/ghettovoice/gosip/log"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	loggersMu sync.Mutex
	loggers   map[string]*log.LogrusLogger

	// DefaultLogLevel is the level new loggers start at when callers do not
	// pick one themselves.
	DefaultLogLevel = log.InfoLevel
)

func init() {
	loggers = make(map[string]*log.LogrusLogger)
}

// NewLogrusLogger returns a prefixed logger for one subsystem. Loggers are
// cached by prefix so a later SetLogLevel call reaches every component that
// shares the prefix.
func NewLogrusLogger(level log.Level, prefix string, fields log.Fields) log.Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, found := loggers[prefix]; found {
		return logger.WithPrefix(prefix)
	}

	l := logrus.New()
	l.Level = logrus.ErrorLevel
	l.Formatter = &prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		ForceColors:     true,
		ForceFormatting: true,
	}
	logger := log.NewLogrusLogger(l, prefix, fields)
	logger.SetLevel(level)
	loggers[prefix] = logger
	return logger.WithPrefix(prefix)
}

// SetLogLevel adjusts the level of the logger registered under prefix.
func SetLogLevel(prefix string, level log.Level) error {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, found := loggers[prefix]; found {
		logger.SetLevel(level)
		return nil
	}
	return fmt.Errorf("logger [%v] not found", prefix)
}

// SetAllLogLevels adjusts every registered logger at once and makes level
// the default for loggers created afterwards.
func SetAllLogLevels(level log.Level) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	DefaultLogLevel = level
	for _, logger := range loggers {
		logger.SetLevel(level)
	}
}
