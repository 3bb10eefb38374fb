package mask

import (
	"errors"
	"testing"

	"github.com/veilcap/veilcap/internal/domain"
	"github.com/veilcap/veilcap/pkg/log"
)

// fakeLister returns a canned window list or an error.
type fakeLister struct {
	windows []domain.Window
	err     error
	calls   int
}

func (f *fakeLister) ListWindows() ([]domain.Window, error) {
	f.calls++
	return f.windows, f.err
}

func rect(x, y, w, h int) domain.Rect {
	return domain.Rect{X: x, Y: y, W: w, H: h}
}

func TestDetector_NoTargets(t *testing.T) {
	lister := &fakeLister{windows: []domain.Window{
		{ID: 1, OwnerName: "Banking", Bounds: rect(0, 0, 100, 100)},
	}}
	d := NewDetector(lister, log.NewNoopLogger())

	if got := d.Detect(); got != nil {
		t.Errorf("Detect with no targets = %+v, want nil", got)
	}
	if lister.calls != 0 {
		t.Errorf("lister queried %d times with no targets, want 0", lister.calls)
	}
	if d.HasTargets() {
		t.Error("HasTargets() = true, want false")
	}
}

func TestDetector_CaseInsensitiveMatch(t *testing.T) {
	lister := &fakeLister{windows: []domain.Window{
		{ID: 1, OwnerName: "KeePassXC", Bounds: rect(10, 10, 200, 100)},
		{ID: 2, OwnerName: "Terminal", Bounds: rect(300, 0, 100, 100)},
	}}
	d := NewDetector(lister, log.NewNoopLogger())
	d.SetTargets([]string{"keepassxc"})

	got := d.Detect()
	if len(got) != 1 {
		t.Fatalf("Detect = %+v, want one window", got)
	}
	if got[0].ID != 1 {
		t.Errorf("matched window ID = %d, want 1", got[0].ID)
	}
	if len(got[0].VisibleRegions) != 1 || got[0].VisibleRegions[0] != rect(10, 10, 200, 100) {
		t.Errorf("unoccluded window regions = %+v, want full bounds", got[0].VisibleRegions)
	}
}

func TestDetector_OcclusionByWindowsInFront(t *testing.T) {
	// Front-to-back: a non-target window covers the left half of the
	// target window behind it.
	lister := &fakeLister{windows: []domain.Window{
		{ID: 1, OwnerName: "Editor", Bounds: rect(0, 0, 50, 100)},
		{ID: 2, OwnerName: "Secrets", Bounds: rect(0, 0, 100, 100)},
	}}
	d := NewDetector(lister, log.NewNoopLogger())
	d.SetTargets([]string{"Secrets"})

	got := d.Detect()
	if len(got) != 1 {
		t.Fatalf("Detect = %+v, want one window", got)
	}
	if len(got[0].VisibleRegions) != 1 || got[0].VisibleRegions[0] != rect(50, 0, 50, 100) {
		t.Errorf("visible regions = %+v, want right half", got[0].VisibleRegions)
	}
}

func TestDetector_FullyOccludedOmitted(t *testing.T) {
	lister := &fakeLister{windows: []domain.Window{
		{ID: 1, OwnerName: "Browser", Bounds: rect(0, 0, 500, 500)},
		{ID: 2, OwnerName: "Secrets", Bounds: rect(100, 100, 50, 50)},
	}}
	d := NewDetector(lister, log.NewNoopLogger())
	d.SetTargets([]string{"Secrets"})

	if got := d.Detect(); got != nil {
		t.Errorf("fully occluded window reported: %+v", got)
	}
}

func TestDetector_TargetsDoNotOccludeWindowsInFrontOfThem(t *testing.T) {
	// The target is frontmost; the second window behind it is also a
	// target and is occluded by the first.
	lister := &fakeLister{windows: []domain.Window{
		{ID: 1, OwnerName: "Secrets", Bounds: rect(0, 0, 100, 100)},
		{ID: 2, OwnerName: "Secrets", Bounds: rect(0, 0, 100, 100)},
	}}
	d := NewDetector(lister, log.NewNoopLogger())
	d.SetTargets([]string{"Secrets"})

	got := d.Detect()
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("Detect = %+v, want only the frontmost window", got)
	}
}

func TestDetector_ListerErrorYieldsEmpty(t *testing.T) {
	lister := &fakeLister{err: errors.New("window server unavailable")}
	d := NewDetector(lister, log.NewNoopLogger())
	d.SetTargets([]string{"Secrets"})

	if got := d.Detect(); got != nil {
		t.Errorf("Detect with lister error = %+v, want nil", got)
	}
}

func TestDetector_NoMatchingWindows(t *testing.T) {
	lister := &fakeLister{windows: []domain.Window{
		{ID: 1, OwnerName: "Terminal", Bounds: rect(0, 0, 100, 100)},
	}}
	d := NewDetector(lister, log.NewNoopLogger())
	d.SetTargets([]string{"NoSuchApp"})

	if got := d.Detect(); got != nil {
		t.Errorf("Detect = %+v, want nil for absent app", got)
	}
}

func TestDetector_SetTargetsSwapsAtRuntime(t *testing.T) {
	lister := &fakeLister{windows: []domain.Window{
		{ID: 1, OwnerName: "Mail", Bounds: rect(0, 0, 10, 10)},
	}}
	d := NewDetector(lister, log.NewNoopLogger())

	d.SetTargets([]string{"Mail"})
	if got := d.Detect(); len(got) != 1 {
		t.Fatalf("Detect after SetTargets = %+v, want one window", got)
	}

	d.SetTargets(nil)
	if got := d.Detect(); got != nil {
		t.Errorf("Detect after clearing targets = %+v, want nil", got)
	}
}
