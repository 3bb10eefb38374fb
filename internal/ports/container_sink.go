package ports

import (
	"context"
	"time"

	"github.com/veilcap/veilcap/internal/domain"
)

// SinkSample is one retimed media sample handed to a container sink.
// PTS is zero-based: the track writer has already subtracted its zero
// point. The payload form is a contract between the capture backend
// and the sink (packed planar frames for raw-ingest sinks, encoded
// access units or PCM for the fMP4 sink).
type SinkSample struct {
	PTS     time.Duration
	Payload []byte
	Sync    bool
}

// ContainerSink writes samples into one output container file.
// Implementations must be safe for concurrent Append calls on
// different tracks.
type ContainerSink interface {
	// Append offers a sample on the given track. It must not block on
	// the container; when the sink is not ready to accept the sample
	// it returns false and the sample is dropped by the caller.
	Append(track int, s SinkSample) bool

	// Finalize flushes and closes the container. It is called exactly
	// once per sink, after every track feeding it has finished, and
	// may block until the container trailer is written.
	Finalize(ctx context.Context) error

	// Path returns the output file path.
	Path() string
}

// VideoSinkConfig describes the single-track video container of one
// display.
type VideoSinkConfig struct {
	Path             string
	Width            int
	Height           int
	FrameRate        int
	BitrateKbps      int
	KeyframeInterval int
}

// AudioSinkConfig describes the session's audio container. Track 0 is
// system output, track 1 the microphone; in merged mode both feed the
// single combined track.
type AudioSinkConfig struct {
	Path        string
	SampleRate  int
	Mode        domain.AudioMode
	BitrateKbps int
}

// SinkFactory constructs container sinks. Sinks are created once per
// session, in Starting, and reused across restarts so output remains
// one continuous file per target.
type SinkFactory interface {
	NewVideoSink(cfg VideoSinkConfig) (ContainerSink, error)
	NewAudioSink(cfg AudioSinkConfig) (ContainerSink, error)
}
