// Package logging builds the structured logger shared by the API and its tools.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Logger = *logrus.Logger

type Fields = logrus.Fields

// NewLogger returns a JSON logger whose level comes from LOG_LEVEL.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(levelFromEnv(os.Getenv("LOG_LEVEL")))
	return logger
}

// NewLoggerWithService tags every entry with the service name.
func NewLoggerWithService(service string) *logrus.Logger {
	logger := NewLogger()
	logger.AddHook(serviceHook{service: service})
	return logger
}

type serviceHook struct {
	service string
}

func (h serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h serviceHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["service"]; !ok {
		entry.Data["service"] = h.service
	}
	return nil
}

func levelFromEnv(value string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
