package portal

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/veilcap/veilcap/internal/ports"
)

// PulseNotifier watches PulseAudio server events for default-device
// switches. `pactl subscribe` lines are treated as hints only; the
// session's device monitor re-queries the defaults and drops noise.
type PulseNotifier struct {
	logger ports.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	hints  chan ports.DeviceSide
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPulseNotifier returns an unsubscribed notifier.
func NewPulseNotifier(logger ports.Logger) *PulseNotifier {
	return &PulseNotifier{logger: logger}
}

// Subscribe implements ports.DeviceNotifier.
func (n *PulseNotifier) Subscribe(ctx context.Context) (<-chan ports.DeviceSide, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.hints != nil {
		return n.hints, nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(subCtx, "pactl", "subscribe")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("pactl subscribe stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start pactl subscribe: %w", err)
	}

	hints := make(chan ports.DeviceSide, 8)
	n.cmd = cmd
	n.hints = hints
	n.cancel = cancel

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer close(hints)
		defer cmd.Wait()

		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			side, ok := classifyEvent(line)
			if !ok {
				continue
			}
			select {
			case hints <- side:
			default:
				// The monitor re-queries on every hint, dropping one
				// while it is behind loses nothing.
			}
		}
	}()
	return hints, nil
}

// classifyEvent picks the device side out of a pactl subscribe line.
// Server events cover default-device switches, sink and source events
// cover hot-plug.
func classifyEvent(line string) (ports.DeviceSide, bool) {
	if !strings.Contains(line, "'change'") && !strings.Contains(line, "'new'") && !strings.Contains(line, "'remove'") {
		return 0, false
	}
	switch {
	case strings.Contains(line, " on source"):
		return ports.DeviceInput, true
	case strings.Contains(line, " on sink"):
		return ports.DeviceOutput, true
	case strings.Contains(line, " on server"):
		// A server change can move either default; report output and
		// let the monitor's re-query sort it out for input too.
		return ports.DeviceOutput, true
	default:
		return 0, false
	}
}

// Unsubscribe implements ports.DeviceNotifier.
func (n *PulseNotifier) Unsubscribe() error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.cmd = nil
	n.hints = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
		n.wg.Wait()
	}
	return nil
}

// DefaultDevice implements ports.DeviceNotifier.
func (n *PulseNotifier) DefaultDevice(side ports.DeviceSide) (string, error) {
	verb := "get-default-sink"
	if side == ports.DeviceInput {
		verb = "get-default-source"
	}
	out, err := exec.Command("pactl", verb).Output()
	if err != nil {
		return "", fmt.Errorf("pactl %s: %w", verb, err)
	}
	return strings.TrimSpace(string(out)), nil
}
