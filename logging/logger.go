/*
Package logging holds the process-wide structured logger.

USAGE:
  logging.Init("quota-engine", cfg.LogLevel)
  logging.Logger.WithFields(logrus.Fields{"concept_id": id}).Info("generated quotas")

Packages that log take a *logrus.Entry (or nothing) rather than reaching for
Logger directly when they are exercised by tests, so tests can silence or
capture output.
*/
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the shared logger. It is usable before Init with logrus defaults.
var Logger = logrus.New()

type appNameHook struct {
	appName string
}

// Levels implements logrus.Hook.
func (h *appNameHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *appNameHook) Fire(entry *logrus.Entry) error {
	entry.Message = "[" + h.appName + "] " + entry.Message
	return nil
}

// Init configures Logger: stdout, text format with full timestamps, the
// given level (info when empty or invalid) and an app-name prefix.
func Init(appName, level string) {
	Logger.SetOutput(os.Stdout)

	levelStr := strings.ToLower(strings.TrimSpace(level))
	if levelStr == "" {
		levelStr = "info"
	}
	lvl, err := logrus.ParseLevel(levelStr)
	if err != nil {
		Logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to INFO", levelStr)
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)

	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if appName != "" {
		Logger.AddHook(&appNameHook{appName})
	}
}

// Discard returns an entry that drops everything. Used by tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// Component returns an entry tagged with a component name.
func Component(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}
