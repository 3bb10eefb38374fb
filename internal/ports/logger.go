package ports

import "github.com/veilcap/veilcap/pkg/log"

// Logger re-exports the logging abstraction so application code only
// imports ports.
type Logger = log.Logger

// Field re-exports the structured log field type.
type Field = log.Field

// Field constructors, re-exported for convenience.
var (
	String   = log.String
	Int      = log.Int
	Uint64   = log.Uint64
	Bool     = log.Bool
	Duration = log.Duration
	Err      = log.Err
)
