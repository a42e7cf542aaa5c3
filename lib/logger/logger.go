package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/smks17/feed_distribution/lib/env"
)

var (
	Logger *logrus.Logger
	once   sync.Once
)

// GetLogger returns the process-wide logger. LOG_LEVEL is read once, on first use.
func GetLogger() *logrus.Logger {
	once.Do(func() {
		Logger = logrus.New()
		Logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
		Logger.SetOutput(os.Stdout)
		Logger.SetLevel(parseLevel(env.GetEnv("LOG_LEVEL", "info")))
	})
	return Logger
}

func parseLevel(raw string) logrus.Level {
	if raw == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
