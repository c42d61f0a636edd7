package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tuncerburak97/tekrar/internal/config"
)

// Init configures the global zerolog logger from cfg and returns it.
// Unknown levels fall back to info.
func Init(cfg config.LogConfig) zerolog.Logger {
	return InitWithWriter(cfg, os.Stdout)
}

// InitWithWriter is Init with an explicit output.
func InitWithWriter(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := w
	if cfg.Format != "json" {
		zerolog.TimeFieldFormat = time.RFC3339
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	if err != nil && cfg.Level != "" {
		log.Warn().Err(err).Str("level", cfg.Level).Msg("Invalid log level, defaulting to info")
	}
	return log.Logger
}
