package logger

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// Init configures the process-wide logger. Unknown levels fall back to
// info rather than failing startup.
func Init(level string) {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
		log.Warnf("unknown log level %q, using info", level)
	}
	log.SetLevel(parsed)
}
