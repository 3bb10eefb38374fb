// Package fmp4 writes capture audio natively as fragmented MP4, with
// no external encoder process. PCM goes in as LPCM tracks, so output
// files are larger than AAC but the sink has zero subprocess overhead
// and survives on machines without ffmpeg.
package fmp4

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	mcfmp4 "github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"

	"github.com/veilcap/veilcap/internal/domain"
	"github.com/veilcap/veilcap/internal/ports"
)

const (
	audioChannels  = 2
	audioBitDepth  = 16
	bytesPerSample = audioChannels * audioBitDepth / 8

	// Fragment roughly once per second of buffered audio.
	partThresholdSamples = 48000
)

// AudioSink is a native fragmented-MP4 audio sink with one LPCM track
// per audio source.
type AudioSink struct {
	path       string
	file       *os.File
	sampleRate int
	logger     ports.Logger

	mu       sync.Mutex
	seq      uint32
	tracks   [2]*pcmTrack
	part     *seekBuffer
	finished bool
}

type pcmTrack struct {
	id       int
	baseTime uint64
	pending  []byte
}

// NewAudioSink creates the output file and writes the init segment.
// Merged mode is not supported natively; the caller falls back to the
// encoder pipeline for it.
func NewAudioSink(cfg ports.AudioSinkConfig, logger ports.Logger) (*AudioSink, error) {
	if cfg.Mode == domain.AudioModeMerged {
		return nil, fmt.Errorf("native audio sink: %w: merged mode requires the encoder pipeline", domain.ErrInvalidConfig)
	}

	file, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}

	s := &AudioSink{
		path:       cfg.Path,
		file:       file,
		sampleRate: cfg.SampleRate,
		logger:     logger,
		part:       &seekBuffer{},
	}
	s.tracks[0] = &pcmTrack{id: 1}
	s.tracks[1] = &pcmTrack{id: 2}

	if err := s.writeInit(file); err != nil {
		file.Close()
		os.Remove(cfg.Path)
		return nil, err
	}
	logger.Debug("native audio sink opened",
		ports.String("path", cfg.Path),
		ports.Int("sample_rate", cfg.SampleRate))
	return s, nil
}

func (s *AudioSink) writeInit(w io.WriteSeeker) error {
	init := mcfmp4.Init{
		Tracks: []*mcfmp4.InitTrack{
			{
				ID:        s.tracks[0].id,
				TimeScale: uint32(s.sampleRate),
				Codec: &mcfmp4.CodecLPCM{
					LittleEndian: true,
					BitDepth:     audioBitDepth,
					SampleRate:   s.sampleRate,
					ChannelCount: audioChannels,
				},
			},
			{
				ID:        s.tracks[1].id,
				TimeScale: uint32(s.sampleRate),
				Codec: &mcfmp4.CodecLPCM{
					LittleEndian: true,
					BitDepth:     audioBitDepth,
					SampleRate:   s.sampleRate,
					ChannelCount: audioChannels,
				},
			},
		},
	}
	buf := &seekBuffer{}
	if err := init.Marshal(buf); err != nil {
		return fmt.Errorf("marshal init segment: %w", err)
	}
	if _, err := w.Write(buf.bytes()); err != nil {
		return fmt.Errorf("write init segment: %w", err)
	}
	return nil
}

// Append buffers one PCM chunk on the track and flushes a fragment once
// enough audio has accumulated. Chunks are truncated to whole frames.
func (s *AudioSink) Append(track int, sample ports.SinkSample) bool {
	if track < 0 || track > 1 {
		return false
	}
	payload := sample.Payload
	if rem := len(payload) % bytesPerSample; rem != 0 {
		payload = payload[:len(payload)-rem]
	}
	if len(payload) == 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	t := s.tracks[track]
	t.pending = append(t.pending, payload...)
	if len(t.pending)/bytesPerSample >= partThresholdSamples {
		if err := s.flushLocked(); err != nil {
			s.logger.Debug("fragment flush failed", ports.Err(err))
			return false
		}
	}
	return true
}

// flushLocked writes one fragment containing all pending track data.
func (s *AudioSink) flushLocked() error {
	var partTracks []*mcfmp4.PartTrack
	for _, t := range s.tracks {
		if len(t.pending) == 0 {
			continue
		}
		sampleCount := len(t.pending) / bytesPerSample
		payload := t.pending
		partTracks = append(partTracks, &mcfmp4.PartTrack{
			ID:       t.id,
			BaseTime: t.baseTime,
			Samples: []*mcfmp4.PartSample{{
				Duration: uint32(sampleCount),
				Payload:  payload,
			}},
		})
		t.baseTime += uint64(sampleCount)
		t.pending = nil
	}
	if len(partTracks) == 0 {
		return nil
	}

	part := mcfmp4.Part{SequenceNumber: s.seq, Tracks: partTracks}
	s.part.reset()
	if err := part.Marshal(s.part); err != nil {
		return fmt.Errorf("marshal fragment: %w", err)
	}
	if _, err := s.file.Write(s.part.bytes()); err != nil {
		return fmt.Errorf("write fragment: %w", err)
	}
	s.seq++
	return nil
}

// Finalize flushes pending audio and closes the file. Idempotent.
func (s *AudioSink) Finalize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}
	s.finished = true

	flushErr := s.flushLocked()
	if err := s.file.Sync(); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("sync audio file: %w", err)
	}
	if err := s.file.Close(); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("close audio file: %w", err)
	}
	return flushErr
}

// Path returns the output file path.
func (s *AudioSink) Path() string { return s.path }
