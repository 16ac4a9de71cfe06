package testutils

import (
	"github.com/sirupsen/logrus"
)

// NewQuietLogger returns a logger that only reports panics
func NewQuietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}
