// Package logging builds the process-wide zerolog sink. Sanitization happens
// once, at the writer boundary, instead of at call sites.
package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// SanitizingWriter replaces astral-plane runes (emoji and friends) before
// passing output on. Some Windows consoles and log shippers choke on them.
type SanitizingWriter struct {
	Out io.Writer
}

func (w SanitizingWriter) Write(p []byte) (int, error) {
	clean := sanitize(p)
	if _, err := w.Out.Write(clean); err != nil {
		return 0, err
	}
	return len(p), nil
}

func sanitize(p []byte) []byte {
	runes := []rune(string(p))
	changed := false
	for i, r := range runes {
		if r > 0xFFFF {
			runes[i] = '?'
			changed = true
		}
	}
	if !changed {
		return p
	}
	return []byte(string(runes))
}

// NewConsole returns the logger used by the CLI: human console format over
// the sanitizing writer.
func NewConsole(out io.Writer, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	cw := zerolog.ConsoleWriter{
		Out:        SanitizingWriter{Out: out},
		TimeFormat: time.TimeOnly,
	}
	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}
