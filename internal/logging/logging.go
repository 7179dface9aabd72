package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger. Development gets the console writer,
// everything else gets JSON lines.
func Setup(environment, level string) {
	SetupWriter(os.Stderr, environment, level)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, environment, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if environment == "development" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", "tenant-isolation").Logger()
	zerolog.DefaultContextLogger = &log.Logger
}
