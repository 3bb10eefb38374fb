package log

import "time"

// Logger is the structured logging interface the capture pipeline
// writes to. The zerolog adapter backs it in the CLI; tests and
// embedders that want silence use the noop implementation.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is one typed key/value attached to a log line.
type Field struct {
	Key   string
	Value any
}

// String attaches a string value.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int attaches an int value.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Uint64 attaches a uint64 value, used for display and node ids.
func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

// Bool attaches a bool value.
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Duration attaches a time.Duration value.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Err attaches an error under the "error" key.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
