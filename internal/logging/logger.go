// Package logging provides the structured logger shared by every component
// of streamgate.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logger type threaded through the whole service.
type Logger = *logrus.Logger

// Fields is a set of structured fields attached to a log entry.
type Fields = logrus.Fields

const (
	DebugLevel = logrus.DebugLevel
	InfoLevel  = logrus.InfoLevel
	WarnLevel  = logrus.WarnLevel
	ErrorLevel = logrus.ErrorLevel
)

// NewLogger creates a JSON-formatted logger with the level taken from
// LOG_LEVEL (default info).
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(levelFromEnv())
	return logger
}

// NewLoggerWithService returns a logger that stamps every entry with the
// given service name.
func NewLoggerWithService(service string) *logrus.Logger {
	base := NewLogger()
	base.AddHook(serviceHook{service: service})
	return base
}

// serviceHook adds a fixed "service" field to every entry it fires on.
type serviceHook struct{ service string }

func (serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.service
	return nil
}

func levelFromEnv() logrus.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
