package app

import (
	"errors"

	"github.com/veilcap/veilcap/internal/domain"
	"github.com/veilcap/veilcap/internal/mask"
	"github.com/veilcap/veilcap/internal/ports"
)

// classifiedError is a stream error with its recoverability verdict
// already applied, queued for the session's completion race.
type classifiedError struct {
	err         domain.StreamError
	recoverable bool
}

// StreamOutput is the per-display callback target. It routes video
// frames through the optional masking stage into the display's track
// writer, audio samples (carried by stream 0 only) into the shared
// audio writers, and stream errors into the session's error channel.
type StreamOutput struct {
	display  domain.Display
	video    *TrackWriter
	audio    map[domain.AudioSource]*TrackWriter
	detector *mask.Detector
	masker   *mask.Masker
	classify func(domain.StreamError) bool
	errs     chan<- classifiedError
	logger   ports.Logger
}

// HandleEvent implements ports.StreamHandler.
func (o *StreamOutput) HandleEvent(ev domain.StreamEvent) {
	switch ev.Kind {
	case domain.EventVideoFrame:
		o.handleVideo(ev.Video)
	case domain.EventAudioSample:
		o.handleAudio(ev.Audio)
	case domain.EventStreamError:
		o.handleError(*ev.Err)
	}
}

func (o *StreamOutput) handleVideo(frame *domain.VideoFrame) {
	if frame == nil || frame.Buffer == nil {
		return
	}

	if o.detector != nil && o.detector.HasTargets() {
		if windows := o.detector.Detect(); len(windows) > 0 {
			var regions []domain.Rect
			for _, w := range windows {
				for _, r := range w.VisibleRegions {
					if r.Intersects(o.display.Bounds) {
						regions = append(regions, r)
					}
				}
			}
			o.masker.Apply(frame.Buffer, regions, o.display.Bounds)
		}
	}

	err := o.video.Append(frame.PTS, frame.Buffer.Pack(), true)
	if err != nil && !errors.Is(err, domain.ErrWriterFinished) {
		o.logger.Error("video append failed", ports.Err(err))
	}
}

func (o *StreamOutput) handleAudio(sample *domain.AudioSample) {
	if sample == nil || o.audio == nil {
		return
	}
	w, ok := o.audio[sample.Source]
	if !ok {
		return
	}
	err := w.Append(sample.PTS, sample.PCM, true)
	if err != nil && !errors.Is(err, domain.ErrWriterFinished) {
		o.logger.Error("audio append failed", ports.Err(err))
	}
}

func (o *StreamOutput) handleError(streamErr domain.StreamError) {
	recoverable := o.classify != nil && o.classify(streamErr)
	o.logger.Warn("stream error",
		ports.String("domain", streamErr.Domain),
		ports.Int("code", streamErr.Code),
		ports.Bool("recoverable", recoverable),
	)

	// Non-blocking: the session resolves on the first error; later
	// ones from parallel streams are discarded.
	select {
	case o.errs <- classifiedError{err: streamErr, recoverable: recoverable}:
	default:
	}
}
