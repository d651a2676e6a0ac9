package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a logger configured for the service. Level and format come
// from the environment so the logger is usable before config is loaded.
func New() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	Configure(log, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	return log
}

// Configure applies level and format settings to an existing logger.
// Unknown values fall back to info/JSON.
func Configure(log *logrus.Logger, level, format string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	if format == "text" {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
		return
	}

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "time",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "msg",
		},
	})
}
