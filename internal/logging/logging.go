// Package logging configures the single package-level logger used across
// microvm-backup. It mirrors the original Python tool's
// logging.basicConfig(level=..., format="%(levelname)s: %(message)s"):
// one process-wide logger, a level toggled by --verbose, no timestamps
// (the terminal or journald already provides them).
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger. Configure is called once per invocation, from
// the root command's PersistentPreRunE.
var Log = logrus.New()

func init() {
	Log.SetOutput(os.Stderr)
	Log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    false,
	})
	Log.SetLevel(logrus.InfoLevel)
}

// Configure sets the log level. verbose selects Debug, otherwise Info.
func Configure(verbose bool) {
	if verbose {
		Log.SetLevel(logrus.DebugLevel)
		return
	}
	Log.SetLevel(logrus.InfoLevel)
}

// ConfigureLevel parses a level name (from local preferences) and applies
// it, falling back to Info on an unrecognized value.
func ConfigureLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Log.SetLevel(logrus.InfoLevel)
		return
	}
	Log.SetLevel(lvl)
}
