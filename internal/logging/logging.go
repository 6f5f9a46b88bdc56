// Package logging defines the shared logrus field conventions used across
// ratelimitd: every component logs through a *logrus.Entry pre-populated
// with its component name, so log lines are greppable by subsystem without
// each package hand-rolling its own prefix. Grounded on the
// PaulFidika-authkit manifest's sirupsen/logrus dependency.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Field names shared across packages, kept here so a log consumer can grep
// for a stable key instead of guessing at each package's choice.
const (
	FieldComponent = "component"
	FieldKey       = "key"
	FieldAlgorithm = "algorithm"
	FieldDecision  = "decision"
	FieldBackend   = "backend"
)

// New returns the process-wide base logger, configured per level/format.
// format is "json" or "text"; anything else defaults to text.
func New(level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	return log
}

// For returns an Entry tagged with the calling component's name, the unit
// every package-level logger in ratelimitd should start from.
func For(log *logrus.Logger, component string) *logrus.Entry {
	return log.WithField(FieldComponent, component)
}
