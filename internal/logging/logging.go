// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Setup applies level and format to the standard logrus logger. Unknown
// levels fall back to info.
func Setup(level, format string) {
	Configure(log.StandardLogger(), os.Stdout, level, format)
}

func Configure(logger *log.Logger, out io.Writer, level, format string) {
	logger.SetOutput(out)

	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		logger.SetFormatter(&log.JSONFormatter{})
		return
	}
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
