package domain

// StopReason is the terminal outcome of a capture session, reported on
// the final descriptor line.
type StopReason int

const (
	// StopCompleted means the configured duration elapsed and all
	// writers finalized.
	StopCompleted StopReason = iota

	// StopDeviceChange means the session ended because audio device
	// changes exhausted the restart budget.
	StopDeviceChange

	// StopError means a fatal stream or write failure ended the session.
	StopError

	// StopSignal means a user interrupt ended the session.
	StopSignal
)

// String returns the wire spelling of the reason.
func (r StopReason) String() string {
	switch r {
	case StopCompleted:
		return "completed"
	case StopDeviceChange:
		return "device-change"
	case StopError:
		return "error"
	case StopSignal:
		return "signal"
	default:
		return "unknown"
	}
}
