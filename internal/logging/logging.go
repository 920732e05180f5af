package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger: JSON to stdout, or a console writer
// in dev.
func New(env, service string) zerolog.Logger {
	var logger zerolog.Logger
	if env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.With().Timestamp().Str("service", service).Logger()
}
