package fmp4

import "github.com/veilcap/veilcap/internal/ports"

// Factory serves audio through the native LPCM sink while delegating
// video to another factory. Video always needs an encoder.
type Factory struct {
	video  ports.SinkFactory
	logger ports.Logger
}

// NewFactory wraps a video sink factory with native audio output.
func NewFactory(video ports.SinkFactory, logger ports.Logger) *Factory {
	return &Factory{video: video, logger: logger}
}

// NewVideoSink implements ports.SinkFactory.
func (f *Factory) NewVideoSink(cfg ports.VideoSinkConfig) (ports.ContainerSink, error) {
	return f.video.NewVideoSink(cfg)
}

// NewAudioSink implements ports.SinkFactory.
func (f *Factory) NewAudioSink(cfg ports.AudioSinkConfig) (ports.ContainerSink, error) {
	return NewAudioSink(cfg, f.logger)
}
