// Package logger provides the process-wide zerolog logger and the adapter
// the cache's editor and persistence layers accept for diagnostics.
package logger

import (
	"os"

	"github.com/rs/zerolog"
	log "github.com/rs/zerolog/log"
)

// Log is the shared logger. Console output on stderr, unix timestamps.
var Log = log.With().Logger().Output(zerolog.ConsoleWriter{Out: os.Stderr})

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// SetLevel adjusts the global level from a config string ("debug", "info",
// "warn", "error"). Unknown values keep the current level.
func SetLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}

// Adapter satisfies the Warningf/Debugf logger interfaces consumed by the
// editor and by badger, backed by a zerolog logger.
type Adapter struct {
	L zerolog.Logger
}

// New returns an adapter over the shared logger.
func New() *Adapter { return &Adapter{L: Log} }

func (a *Adapter) Errorf(format string, args ...any)   { a.L.Error().Msgf(format, args...) }
func (a *Adapter) Warningf(format string, args ...any) { a.L.Warn().Msgf(format, args...) }
func (a *Adapter) Infof(format string, args ...any)    { a.L.Info().Msgf(format, args...) }
func (a *Adapter) Debugf(format string, args ...any)   { a.L.Debug().Msgf(format, args...) }
