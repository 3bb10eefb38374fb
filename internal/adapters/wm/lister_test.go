package wm

import "testing"

const sampleOutput = `0x01200003 -1 0    0    1920 28   xfce4-panel.Xfce4-panel  host xfce4-panel
0x03000004  0 100  200  800  600  gnome-terminal-server.Gnome-terminal  host Terminal
0x04000007  0 400  300  1024 768  1password.1Password  host 1Password
0x0520000a  1 0    0    1920 1052 firefox.Firefox  host Mozilla Firefox
bogus line
`

func TestParseWindowList(t *testing.T) {
	windows := parseWindowList(sampleOutput)
	if len(windows) != 3 {
		t.Fatalf("parsed %d windows, want 3", len(windows))
	}

	// wmctrl lists bottom to top, so the last parsed line is frontmost.
	if windows[0].OwnerName != "Firefox" {
		t.Errorf("frontmost = %q, want Firefox", windows[0].OwnerName)
	}
	if windows[2].OwnerName != "Gnome-terminal" {
		t.Errorf("backmost = %q, want Gnome-terminal", windows[2].OwnerName)
	}
	for i, w := range windows {
		if w.Layer != i {
			t.Errorf("window %d layer = %d", i, w.Layer)
		}
	}

	pw := windows[1]
	if pw.OwnerName != "1Password" {
		t.Fatalf("windows[1] = %q", pw.OwnerName)
	}
	if pw.Bounds.X != 400 || pw.Bounds.Y != 300 || pw.Bounds.W != 1024 || pw.Bounds.H != 768 {
		t.Errorf("bounds = %+v", pw.Bounds)
	}
	if pw.ID != 0x04000007 {
		t.Errorf("id = %#x", pw.ID)
	}
}

func TestParseWindowListSkipsPanels(t *testing.T) {
	for _, w := range parseWindowList(sampleOutput) {
		if w.OwnerName == "Xfce4-panel" {
			t.Error("sticky panel should be skipped")
		}
	}
}

func TestOwnerFromClass(t *testing.T) {
	tests := []struct{ in, want string }{
		{"gnome-terminal-server.Gnome-terminal", "Gnome-terminal"},
		{"noclasspair", "noclasspair"},
		{"trailing.", "trailing."},
	}
	for _, tt := range tests {
		if got := ownerFromClass(tt.in); got != tt.want {
			t.Errorf("ownerFromClass(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
