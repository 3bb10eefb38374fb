package ports

import "context"

// DeviceSide distinguishes the two default-device notifications.
type DeviceSide int

const (
	// DeviceInput is the default input (microphone) device.
	DeviceInput DeviceSide = iota

	// DeviceOutput is the default output device.
	DeviceOutput
)

// String returns the log spelling of the side.
func (s DeviceSide) String() string {
	if s == DeviceInput {
		return "input"
	}
	return "output"
}

// DeviceNotifier exposes the OS default-audio-device notifications.
// Notifications are hints: the monitor re-queries the current default
// id on each hint and discards spurious ones.
type DeviceNotifier interface {
	// Subscribe starts delivery of change hints. The channel closes
	// when ctx is canceled or Unsubscribe is called.
	Subscribe(ctx context.Context) (<-chan DeviceSide, error)

	// Unsubscribe tears the subscription down. Idempotent.
	Unsubscribe() error

	// DefaultDevice returns the current default device id for a side.
	DefaultDevice(side DeviceSide) (string, error)
}
