// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Configure sets the standard logger's formatter and level. Development gets
// human-readable text; every other environment gets JSON. An unknown level
// falls back to info and is reported once the logger is ready.
func Configure(appEnv, level string) {
	configure(logrus.StandardLogger(), os.Stdout, appEnv, level)
}

func configure(logger *logrus.Logger, out io.Writer, appEnv, level string) {
	logger.SetOutput(out)

	if appEnv == "development" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
		logger.WithField("level", level).Warn("unknown log level, using info")
		return
	}
	logger.SetLevel(parsed)
}
