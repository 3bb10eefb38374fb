package app

import (
	"context"
	"sync"

	"github.com/veilcap/veilcap/internal/ports"
)

// DeviceMonitor watches the default audio device identifiers and
// raises a restart request when one actually changes.
//
// The OS notification is only a hint: on each one the monitor
// re-queries the current default id and compares it to the snapshot
// taken when the monitor was last armed. Spurious notifications (id
// unchanged) are swallowed. At most one restart request fires per
// armed period; Arm is called again for every capture attempt.
type DeviceMonitor struct {
	notifier ports.DeviceNotifier
	logger   ports.Logger

	mu       sync.Mutex
	armed    bool
	fired    bool
	inputID  string
	outputID string

	changes chan ports.DeviceSide
	stop    context.CancelFunc
	doneWG  sync.WaitGroup
}

// NewDeviceMonitor creates a monitor over the given notifier.
func NewDeviceMonitor(notifier ports.DeviceNotifier, logger ports.Logger) *DeviceMonitor {
	return &DeviceMonitor{
		notifier: notifier,
		logger:   logger,
		changes:  make(chan ports.DeviceSide, 1),
	}
}

// Start subscribes to the notification service and begins filtering
// hints. The monitor starts disarmed; call Arm before each attempt.
func (m *DeviceMonitor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	hints, err := m.notifier.Subscribe(runCtx)
	if err != nil {
		cancel()
		return err
	}
	m.stop = cancel

	m.doneWG.Add(1)
	go func() {
		defer m.doneWG.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case side, ok := <-hints:
				if !ok {
					return
				}
				m.handleHint(side)
			}
		}
	}()
	return nil
}

// Stop unsubscribes and waits for the filter goroutine to exit.
func (m *DeviceMonitor) Stop() {
	if m.stop != nil {
		m.stop()
	}
	_ = m.notifier.Unsubscribe()
	m.doneWG.Wait()
}

// Arm snapshots the current default device ids and re-enables the
// single restart request for the new capture attempt.
func (m *DeviceMonitor) Arm() error {
	in, err := m.notifier.DefaultDevice(ports.DeviceInput)
	if err != nil {
		return err
	}
	out, err := m.notifier.DefaultDevice(ports.DeviceOutput)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.inputID = in
	m.outputID = out
	m.armed = true
	m.fired = false
	m.mu.Unlock()
	return nil
}

// Changes delivers at most one device side per armed period.
func (m *DeviceMonitor) Changes() <-chan ports.DeviceSide {
	return m.changes
}

func (m *DeviceMonitor) handleHint(side ports.DeviceSide) {
	current, err := m.notifier.DefaultDevice(side)
	if err != nil {
		m.logger.Debug("device re-query failed", ports.Err(err))
		return
	}

	m.mu.Lock()
	previous := m.inputID
	if side == ports.DeviceOutput {
		previous = m.outputID
	}
	if current == previous {
		m.mu.Unlock()
		m.logger.Debug("spurious device notification",
			ports.String("side", side.String()),
			ports.String("device", current),
		)
		return
	}
	if !m.armed || m.fired {
		m.mu.Unlock()
		return
	}
	m.fired = true
	if side == ports.DeviceInput {
		m.inputID = current
	} else {
		m.outputID = current
	}
	m.mu.Unlock()

	m.logger.Info("default device changed",
		ports.String("side", side.String()),
		ports.String("device", current),
	)
	select {
	case m.changes <- side:
	default:
	}
}
