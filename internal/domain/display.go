package domain

// DisplayID identifies a display within the capture service.
type DisplayID uint32

// Display is an enumerated capture target. Width and Height are the pixel
// dimensions of the captured stream; Bounds is the display's position and
// size in global (point) coordinates, which may differ from the pixel
// dimensions on scaled displays.
type Display struct {
	ID     DisplayID
	Width  int
	Height int
	Bounds Rect
}

// AudioMode selects the layout of the produced audio container.
type AudioMode int

const (
	// AudioModeDual writes system output and microphone as two mono tracks.
	AudioModeDual AudioMode = iota

	// AudioModeMerged mixes both sources into one combined track.
	AudioModeMerged
)

// String returns the configuration spelling of the mode.
func (m AudioMode) String() string {
	switch m {
	case AudioModeDual:
		return "dual"
	case AudioModeMerged:
		return "merged"
	default:
		return "unknown"
	}
}
