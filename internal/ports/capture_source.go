package ports

import (
	"context"

	"github.com/veilcap/veilcap/internal/domain"
)

// StreamConfig describes one capture stream to open.
type StreamConfig struct {
	// Display is the capture target.
	Display domain.Display

	// FrameRate is the requested frames per second.
	FrameRate int

	// IncludeAudio attaches the two audio channels (system output and
	// microphone) to this stream. At most one stream per session
	// carries audio.
	IncludeAudio bool
}

// StreamHandler receives the tagged events of one capture stream.
// Events for a single stream arrive sequentially on the capture
// service's callback queue; events across streams may interleave.
type StreamHandler interface {
	HandleEvent(ev domain.StreamEvent)
}

// CaptureStream is one running per-display capture. Streams are
// recreated per session attempt; writers outlive them.
type CaptureStream interface {
	// Stop halts sample delivery. Best effort: an error is loggable
	// but never fatal to the session.
	Stop(ctx context.Context) error
}

// CaptureSource opens capture streams against the OS capture service.
type CaptureSource interface {
	OpenStream(ctx context.Context, cfg StreamConfig, h StreamHandler) (CaptureStream, error)
}

// DisplayEnumerator reports the displays eligible for capture.
type DisplayEnumerator interface {
	Displays(ctx context.Context) ([]domain.Display, error)
}

// WindowLister reports the on-screen window list, ordered front to
// back. An error means the window service could not be queried; the
// caller treats that as "no windows" and skips masking for the frame.
type WindowLister interface {
	ListWindows() ([]domain.Window, error)
}
