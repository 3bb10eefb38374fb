package log

import (
	"time"

	"github.com/rs/zerolog"
)

// Zerolog adapts a zerolog.Logger to the Logger interface. The caller
// configures the underlying logger (output, level, timestamps); the
// adapter only translates fields.
type Zerolog struct {
	l zerolog.Logger
}

// NewZerolog wraps an existing zerolog.Logger.
func NewZerolog(l zerolog.Logger) *Zerolog {
	return &Zerolog{l: l}
}

func (z *Zerolog) Debug(msg string, fields ...Field) { emit(z.l.Debug(), msg, fields) }
func (z *Zerolog) Info(msg string, fields ...Field)  { emit(z.l.Info(), msg, fields) }
func (z *Zerolog) Warn(msg string, fields ...Field)  { emit(z.l.Warn(), msg, fields) }
func (z *Zerolog) Error(msg string, fields ...Field) { emit(z.l.Error(), msg, fields) }

func emit(ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			ev = ev.Err(v)
		case string:
			ev = ev.Str(f.Key, v)
		case int:
			ev = ev.Int(f.Key, v)
		case uint64:
			ev = ev.Uint64(f.Key, v)
		case bool:
			ev = ev.Bool(f.Key, v)
		case time.Duration:
			ev = ev.Dur(f.Key, v)
		default:
			ev = ev.Interface(f.Key, v)
		}
	}
	ev.Msg(msg)
}
