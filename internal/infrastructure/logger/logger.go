package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"imagevault/internal/config"
)

// New constructs the service logger from configuration. Production
// environments log JSON; everything else gets the console writer.
func New(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var log zerolog.Logger
	if cfg.Environment == "production" {
		log = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		log = zerolog.New(consoleWriter).With().Timestamp().Logger()
	}

	return log.Level(level).With().Str("service", cfg.ServiceName).Logger()
}
