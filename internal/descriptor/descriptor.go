// Package descriptor emits the line-oriented JSON session output:
// one descriptor line per output file at startup, and one terminal
// line reporting the stop reason.
package descriptor

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/veilcap/veilcap/internal/domain"
)

// FileInfo describes one output file.
type FileInfo struct {
	Type       string   `json:"type"`
	Path       string   `json:"path"`
	Display    uint32   `json:"display,omitempty"`
	Width      int      `json:"width,omitempty"`
	Height     int      `json:"height,omitempty"`
	X          int      `json:"x"`
	Y          int      `json:"y"`
	FrameRate  int      `json:"frame_rate,omitempty"`
	SampleRate int      `json:"sample_rate,omitempty"`
	Channels   int      `json:"channels,omitempty"`
	Tracks     []string `json:"tracks,omitempty"`
}

// stopLine is the terminal line. Domain and Code are present for
// error stops, Signal for interrupt stops.
type stopLine struct {
	Stop   string `json:"stop"`
	Domain string `json:"domain,omitempty"`
	Code   int    `json:"code,omitempty"`
	Signal int    `json:"signal,omitempty"`
}

// Emitter writes JSON lines to a single writer. Safe for concurrent use.
type Emitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEmitter creates an emitter over w, typically stdout.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// File emits one output-file descriptor line.
func (e *Emitter) File(info FileInfo) error {
	return e.emit(info)
}

// VideoFile emits the descriptor for one per-display video container.
func (e *Emitter) VideoFile(path string, d domain.Display, frameRate int) error {
	return e.File(FileInfo{
		Type:      "video",
		Path:      path,
		Display:   uint32(d.ID),
		Width:     d.Width,
		Height:    d.Height,
		X:         d.Bounds.X,
		Y:         d.Bounds.Y,
		FrameRate: frameRate,
	})
}

// AudioFile emits the descriptor for the session audio container.
func (e *Emitter) AudioFile(path string, sampleRate int, mode domain.AudioMode) error {
	info := FileInfo{
		Type:       "audio",
		Path:       path,
		SampleRate: sampleRate,
	}
	switch mode {
	case domain.AudioModeMerged:
		info.Channels = 1
		info.Tracks = []string{"mixed"}
	default:
		info.Channels = 2
		info.Tracks = []string{domain.AudioSystem.String(), domain.AudioMicrophone.String()}
	}
	return e.File(info)
}

// Stop emits the terminal stop-reason line. streamErr carries the
// domain and code for error stops; sig the signal number for
// interrupt stops.
func (e *Emitter) Stop(reason domain.StopReason, streamErr *domain.StreamError, sig int) error {
	line := stopLine{Stop: reason.String()}
	if streamErr != nil {
		line.Domain = streamErr.Domain
		line.Code = streamErr.Code
	}
	if reason == domain.StopSignal {
		line.Signal = sig
	}
	return e.emit(line)
}

func (e *Emitter) emit(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(b)
	return err
}
