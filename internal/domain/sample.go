package domain

import (
	"fmt"
	"time"
)

// AudioSource tags an audio sample with its origin.
type AudioSource int

const (
	// AudioSystem is the system output (what the speakers play).
	AudioSystem AudioSource = iota

	// AudioMicrophone is the default input device.
	AudioMicrophone
)

// String returns the track name used in descriptors and logs.
func (s AudioSource) String() string {
	switch s {
	case AudioSystem:
		return "system"
	case AudioMicrophone:
		return "microphone"
	default:
		return "unknown"
	}
}

// Plane is one plane of a planar frame buffer. SubX and SubY are the
// horizontal and vertical subsampling divisors (1 for the luma plane,
// 2 for the chroma planes of a 4:2:0 frame).
type Plane struct {
	Data   []byte
	Stride int
	SubX   int
	SubY   int
}

// FrameBuffer is a planar video frame as delivered by the capture
// service. Plane 0 is luma; any further planes are chroma.
// The buffer is owned by the delivery callback for the duration of the
// call; mutation (masking) requires exclusive access.
type FrameBuffer struct {
	Width  int
	Height int
	Planes []Plane
}

// Pack concatenates the planes into one contiguous byte slice in plane
// order, dropping any stride padding. The result is the packed planar
// layout container sinks ingest.
func (f *FrameBuffer) Pack() []byte {
	total := 0
	for _, p := range f.Planes {
		total += (f.Width / p.SubX) * (f.Height / p.SubY)
	}
	out := make([]byte, 0, total)
	for _, p := range f.Planes {
		w := f.Width / p.SubX
		h := f.Height / p.SubY
		for row := 0; row < h; row++ {
			out = append(out, p.Data[row*p.Stride:row*p.Stride+w]...)
		}
	}
	return out
}

// VideoFrame is one captured frame with its presentation timestamp on
// the capture service's absolute clock.
type VideoFrame struct {
	PTS    time.Duration
	Buffer *FrameBuffer
}

// AudioSample is one PCM buffer with its presentation timestamp and
// source tag. PCM is interleaved stereo signed 16-bit little-endian at
// SampleRate.
type AudioSample struct {
	PTS        time.Duration
	Source     AudioSource
	SampleRate int
	PCM        []byte
}

// StreamError is an out-of-band per-stream error notification carrying
// the backend's domain and numeric code. Whether a code is recoverable
// is external configuration, not a property of the value.
type StreamError struct {
	Domain  string
	Code    int
	Message string
}

// Error implements the error interface.
func (e StreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("stream error %s/%d", e.Domain, e.Code)
	}
	return fmt.Sprintf("stream error %s/%d: %s", e.Domain, e.Code, e.Message)
}

// EventKind discriminates the StreamEvent variant.
type EventKind int

const (
	// EventVideoFrame carries a VideoFrame.
	EventVideoFrame EventKind = iota

	// EventAudioSample carries an AudioSample.
	EventAudioSample

	// EventStreamError carries a StreamError.
	EventStreamError
)

// StreamEvent is the tagged variant a capture stream delivers to its
// per-display output. Exactly the field matching Kind is set.
type StreamEvent struct {
	Kind  EventKind
	Video *VideoFrame
	Audio *AudioSample
	Err   *StreamError
}
