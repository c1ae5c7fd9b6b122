// Package logging sets up the process-wide structured logger, grounded
// in dh-cli's use of logrus (src/main.go configures a single
// logrus.Logger with a text formatter and a level taken from CLI flags;
// subsystems request per-component entries via WithField instead of
// instantiating their own loggers).
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the base logger. verbose raises the level to Debug, matching
// dh-cli's --verbose flag.
func New(verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

// For derives a subsystem logger carrying a component field; it adds no
// other fields (no pid, shm_id or addr context).
func For(log *logrus.Logger, component string) *logrus.Entry {
	return log.WithField("component", component)
}
