package logutils

import "github.com/sirupsen/logrus"

var log = logrus.StandardLogger()

func SetLoggerLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
}

// SetLoggerFormat switches between the default text output and JSON lines.
func SetLoggerFormat(format string) {
	switch format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}
