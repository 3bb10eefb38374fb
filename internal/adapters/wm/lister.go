// Package wm lists on-screen windows through wmctrl. Used to find
// where masked applications are and who covers them.
package wm

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/veilcap/veilcap/internal/domain"
)

// Lister implements ports.WindowLister over `wmctrl -lGx`.
type Lister struct{}

// NewLister returns a wmctrl-backed window lister.
func NewLister() *Lister {
	return &Lister{}
}

// ListWindows returns the visible windows, frontmost first. wmctrl
// prints stacking order bottom to top, so the output is reversed.
func (l *Lister) ListWindows() ([]domain.Window, error) {
	out, err := exec.Command("wmctrl", "-lGx").Output()
	if err != nil {
		return nil, fmt.Errorf("wmctrl: %w", err)
	}
	return parseWindowList(string(out)), nil
}

// parseWindowList parses wmctrl -lGx output. Each line:
//
//	0x04000007  0 65   24   1280 992  app.App  host title...
//
// Columns: id, desktop, x, y, w, h, WM_CLASS, host, title. Desktop -1
// marks panels and docks, which never occlude capture content.
func parseWindowList(out string) []domain.Window {
	var windows []domain.Window
	layer := 0
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 8 {
			continue
		}
		if fields[1] == "-1" {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimPrefix(fields[0], "0x"), 16, 64)
		if err != nil {
			continue
		}
		geo := make([]int, 4)
		ok := true
		for i := 0; i < 4; i++ {
			geo[i], err = strconv.Atoi(fields[2+i])
			if err != nil {
				ok = false
				break
			}
		}
		if !ok || geo[2] <= 0 || geo[3] <= 0 {
			continue
		}
		windows = append(windows, domain.Window{
			ID:        id,
			OwnerName: ownerFromClass(fields[6]),
			Bounds:    domain.Rect{X: geo[0], Y: geo[1], W: geo[2], H: geo[3]},
			Layer:     layer,
		})
		layer++
	}

	// Bottom-to-top in, front-to-back out.
	for i, j := 0, len(windows)-1; i < j; i, j = i+1, j-1 {
		windows[i], windows[j] = windows[j], windows[i]
	}
	for i := range windows {
		windows[i].Layer = i
	}
	return windows
}

// ownerFromClass extracts the application name from a WM_CLASS pair
// like "gnome-terminal-server.Gnome-terminal".
func ownerFromClass(class string) string {
	if i := strings.LastIndex(class, "."); i >= 0 && i+1 < len(class) {
		return class[i+1:]
	}
	return class
}
