// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger writing timestamped leveled text lines, carrying the
// application name on every entry. If file is non-empty the log is appended
// there, otherwise it goes to stderr.
func New(appName, file string) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.SetOutput(f)
	}

	return logger.WithField("app", appName), nil
}
