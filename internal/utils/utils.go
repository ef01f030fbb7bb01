package utils

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
)

var Log = logrus.New()

func SetLogLevel(level string) {
	// We are not using logrus' trace and panic levels
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(log.DebugLevel)
	case "info":
		Log.SetLevel(log.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(log.WarnLevel)
	case "error":
		Log.SetLevel(log.ErrorLevel)
	case "fatal":
		Log.SetLevel(log.FatalLevel)
	default:
		log.Fatal("Bad error level string")
	}
}

var (
	unsafeFileChars = regexp.MustCompile(`[\\/:*?"<>|\r\n]+`)
	spaceRun        = regexp.MustCompile(`\s+`)
)

// SafeName turns an operator or brand name into something usable as a file name.
func SafeName(s string) string {
	s = strings.TrimSpace(unsafeFileChars.ReplaceAllString(s, "_"))
	return spaceRun.ReplaceAllString(s, " ")
}

// CollapseSpace trims s and folds every whitespace run into a single space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}
