package ffmpeg

import (
	"sync"

	"github.com/veilcap/veilcap/internal/ports"
)

// Factory builds ffmpeg-backed container sinks. The encoder probe runs
// once, on the first video sink, and its result is reused for every
// display.
type Factory struct {
	ffmpegPath string
	logger     ports.Logger

	planOnce sync.Once
	plan     encoderPlan
}

// NewFactory returns a sink factory using the given ffmpeg binary.
func NewFactory(ffmpegPath string, logger ports.Logger) *Factory {
	return &Factory{ffmpegPath: ffmpegPath, logger: logger}
}

// NewVideoSink implements ports.SinkFactory.
func (f *Factory) NewVideoSink(cfg ports.VideoSinkConfig) (ports.ContainerSink, error) {
	f.planOnce.Do(func() {
		f.plan = selectEncoder(f.ffmpegPath, f.logger)
	})
	return NewVideoSink(f.ffmpegPath, f.plan, cfg, f.logger)
}

// NewAudioSink implements ports.SinkFactory.
func (f *Factory) NewAudioSink(cfg ports.AudioSinkConfig) (ports.ContainerSink, error) {
	return NewAudioSink(f.ffmpegPath, cfg, f.logger)
}
