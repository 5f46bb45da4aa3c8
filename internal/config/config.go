package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the process logger. Components receive it as a logrus.FieldLogger.
var Log = logrus.New()

// LogLevelEnv overrides the level chosen by SetupLogging.
const LogLevelEnv = "GATTPROV_LOG_LEVEL"

// SetupLogging configures Log. format is "text" or "json".
func SetupLogging(verbose bool, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		Log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	if env := os.Getenv(LogLevelEnv); env != "" {
		parsed, err := logrus.ParseLevel(env)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", LogLevelEnv, err)
		}
		level = parsed
	}
	Log.SetLevel(level)
	Log.SetOutput(os.Stderr)
	return nil
}
