// Package logging builds the zerolog logger used by the binaries and adapts it
// to quotesock.Logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console logger writing to w at the given level.
// Unknown levels fall back to info.
func New(app, level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, ok := ParseLevel(level)
	if !ok {
		lvl = zerolog.InfoLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(lvl).With().Timestamp().Str("app", app).Logger()
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

// Adapter exposes a zerolog.Logger through the slog-style key/value methods
// of quotesock.Logger.
type Adapter struct {
	l zerolog.Logger
}

// Adapt wraps l.
func Adapt(l zerolog.Logger) *Adapter {
	return &Adapter{l: l}
}

// Debug logs msg at debug level with slog-style key/value args.
func (a *Adapter) Debug(msg string, args ...any) { a.log(a.l.Debug(), msg, args) }

// Info logs msg at info level.
func (a *Adapter) Info(msg string, args ...any) { a.log(a.l.Info(), msg, args) }

// Warn logs msg at warn level.
func (a *Adapter) Warn(msg string, args ...any) { a.log(a.l.Warn(), msg, args) }

// Error logs msg at error level.
func (a *Adapter) Error(msg string, args ...any) { a.log(a.l.Error(), msg, args) }

func (a *Adapter) log(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			e = e.Interface("!BADKEY", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		case fmt.Stringer:
			e = e.Stringer(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
