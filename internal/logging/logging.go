// Package logging configures the node's structured logger.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the root logger: JSON formatting, level from levelName
// (defaulting to info on an unrecognised value).
func New(levelName string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// Component returns a logger entry tagged with the given component
// name, the convention every package in this node follows.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
