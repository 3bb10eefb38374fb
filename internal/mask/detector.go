// Package mask derives per-frame masked regions from the window list
// and writes neutral pixels over them in captured frames.
package mask

import (
	"strings"
	"sync"

	"github.com/veilcap/veilcap/internal/domain"
	"github.com/veilcap/veilcap/internal/occlude"
	"github.com/veilcap/veilcap/internal/ports"
)

// Detector finds windows owned by the configured target applications
// and computes the regions of them still visible under the current
// z-order. It is stateless apart from the target set, which may be
// swapped at runtime.
type Detector struct {
	lister ports.WindowLister
	logger ports.Logger

	mu      sync.RWMutex
	targets map[string]struct{}
}

// NewDetector creates a detector over the given window lister.
func NewDetector(lister ports.WindowLister, logger ports.Logger) *Detector {
	return &Detector{
		lister:  lister,
		logger:  logger,
		targets: map[string]struct{}{},
	}
}

// SetTargets replaces the masked application names. Matching is
// case-insensitive; empty names are ignored.
func (d *Detector) SetTargets(names []string) {
	targets := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		targets[strings.ToLower(n)] = struct{}{}
	}

	d.mu.Lock()
	d.targets = targets
	d.mu.Unlock()
}

// HasTargets reports whether any application is being masked.
func (d *Detector) HasTargets() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.targets) > 0
}

// Detect walks the window list front to back and returns the target
// windows that still have a visible region. For each match, the
// occlusion engine is folded over every window bounds seen so far,
// i.e. strictly in front of it. Fully hidden windows are omitted.
//
// A window-service failure yields an empty result: masking is skipped
// for the frame, never fatal.
func (d *Detector) Detect() []domain.MaskedWindow {
	d.mu.RLock()
	targets := d.targets
	d.mu.RUnlock()
	if len(targets) == 0 {
		return nil
	}

	windows, err := d.lister.ListWindows()
	if err != nil {
		d.logger.Debug("window query failed, skipping mask", ports.Err(err))
		return nil
	}

	var masked []domain.MaskedWindow
	var front []domain.Rect
	for _, w := range windows {
		if _, ok := targets[strings.ToLower(w.OwnerName)]; ok {
			if vis := occlude.Visible(w.Bounds, front); len(vis) > 0 {
				masked = append(masked, domain.MaskedWindow{
					ID:             w.ID,
					OwnerName:      w.OwnerName,
					Bounds:         w.Bounds,
					VisibleRegions: vis,
				})
			}
		}
		if !w.Bounds.Empty() {
			front = append(front, w.Bounds)
		}
	}
	return masked
}
