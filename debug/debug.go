// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go — Tagged diagnostic logging
//
// Purpose:
//   - Logs cold-path events: mode switches, dial/subscribe failures, skipped
//     blocks, journal errors.
//   - Keeps the DropMessage/DropError call shape; every tag becomes the
//     "tag" field of a zerolog event.
//
// Notes:
//   - Logs go to stderr by default so they never interleave with the race
//     board on stdout.
//
// ⚠️ Never log per-horse progress here; the display owns that output.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var logger atomic.Pointer[zerolog.Logger]

func init() {
	Configure(os.Stderr, "warn")
}

// Configure installs a console logger writing to w at the given level.
// Unknown level names fall back to info.
func Configure(w io.Writer, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	l := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
	logger.Store(&l)
}

// Logger returns the active logger for call sites that need structured fields.
func Logger() *zerolog.Logger {
	return logger.Load()
}

// DropError logs a failure under prefix. A nil err logs just the prefix at
// debug level, which is used as a cheap trace tag.
func DropError(prefix string, err error) {
	l := logger.Load()
	if err != nil {
		l.Error().Str("tag", prefix).Err(err).Send()
		return
	}
	l.Debug().Str("tag", prefix).Send()
}

// DropMessage logs an informational message under prefix.
func DropMessage(prefix, message string) {
	logger.Load().Info().Str("tag", prefix).Msg(message)
}

// DropTrace logs a debug-level message under prefix.
func DropTrace(prefix, message string) {
	logger.Load().Debug().Str("tag", prefix).Msg(message)
}
