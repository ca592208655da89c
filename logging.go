package authorflow

import (
	"github.com/sirupsen/logrus"
)

// NewLogger returns a JSON logger at the given level. Unknown levels fall
// back to info.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
