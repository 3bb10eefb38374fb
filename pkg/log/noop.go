package log

// NoopLogger discards everything. It is the default for library
// embedders that don't pass a logger.
type NoopLogger struct{}

// NewNoopLogger returns a logger that drops all output.
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (NoopLogger) Debug(msg string, fields ...Field) {}
func (NoopLogger) Info(msg string, fields ...Field)  {}
func (NoopLogger) Warn(msg string, fields ...Field)  {}
func (NoopLogger) Error(msg string, fields ...Field) {}
