// Package veilcap is the embeddable capture library. Use New() to
// build a session wired with the platform adapters, then Run() to
// record until completion, interruption, or a fatal stream error.
package veilcap

import (
	"context"
	"time"

	"github.com/veilcap/veilcap/internal/adapters/ffmpeg"
	"github.com/veilcap/veilcap/internal/adapters/fmp4"
	"github.com/veilcap/veilcap/internal/adapters/portal"
	"github.com/veilcap/veilcap/internal/adapters/wm"
	"github.com/veilcap/veilcap/internal/app"
	"github.com/veilcap/veilcap/internal/cliconfig"
	"github.com/veilcap/veilcap/internal/descriptor"
	"github.com/veilcap/veilcap/internal/domain"
	"github.com/veilcap/veilcap/internal/ports"
	"github.com/veilcap/veilcap/pkg/log"
)

// Re-exported result types so embedders don't import internal packages.
type (
	// StopReason is why a finished session stopped.
	StopReason = domain.StopReason

	// StreamError is a capture backend error with domain and code.
	StreamError = domain.StreamError
)

// Stop reasons.
const (
	StopCompleted    = domain.StopCompleted
	StopDeviceChange = domain.StopDeviceChange
	StopError        = domain.StopError
	StopSignal       = domain.StopSignal
)

// Config configures a capture session.
type Config struct {
	// OutputDir receives the video and audio files. Required.
	OutputDir string

	// BaseName prefixes output file names. Defaults to "capture".
	BaseName string

	// FrameRate is the capture rate in frames per second.
	FrameRate int

	// Duration bounds the recording; 0 records until interrupted.
	Duration time.Duration

	// Audio enables the two audio channels (system and microphone).
	Audio bool

	// AudioMode is "dual" (separate tracks) or "merged" (mixed).
	AudioMode string

	SampleRate       int
	VideoBitrateKbps int
	AudioBitrateKbps int
	KeyframeInterval int

	// MaskApps are application names whose windows are blacked out in
	// the captured video.
	MaskApps []string

	// MaskFile marks that masked-app names are pushed in at runtime
	// through SetMaskApps (the CLI's mask-list file watcher does this),
	// so window enumeration is wired even when MaskApps starts empty.
	MaskFile string

	// MaxRestarts caps recoverable-error restarts before giving up.
	MaxRestarts int

	// RestartPause is the initial backoff before a restart attempt;
	// it doubles per consecutive restart.
	RestartPause time.Duration

	DrainTimeout time.Duration

	// FFmpegPath locates the encoder binary. Defaults to "ffmpeg".
	FFmpegPath string

	// NativeAudio writes audio as LPCM fragmented MP4 in-process
	// instead of spawning an encoder. Dual mode only.
	NativeAudio bool

	// RecoverableCodes maps stream-error domains to transient codes.
	RecoverableCodes map[string][]int
}

// Capture is one configured capture session.
type Capture struct {
	session *app.Session
	source  *portal.Source
	logger  ports.Logger
}

// New wires a capture session. Platform adapters fill any dependency
// not overridden through options.
func New(cfg Config, opts ...Option) (*Capture, error) {
	if cfg.BaseName == "" {
		cfg.BaseName = "capture"
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = app.DefaultSampleRate
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.RecoverableCodes == nil {
		cfg.RecoverableCodes = cliconfig.DefaultRecoverableCodes()
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	var ownedSource *portal.Source
	source := o.source
	displays := o.displays
	if source == nil || displays == nil {
		ownedSource = portal.NewSource(cfg.SampleRate, logger)
		if source == nil {
			source = ownedSource
		}
		if displays == nil {
			displays = ownedSource
		}
	}

	sinks := o.sinks
	if sinks == nil {
		encoder := ffmpeg.NewFactory(cfg.FFmpegPath, logger)
		if cfg.NativeAudio {
			sinks = fmp4.NewFactory(encoder, logger)
		} else {
			sinks = encoder
		}
	}

	windows := o.windows
	if windows == nil && (len(cfg.MaskApps) > 0 || cfg.MaskFile != "") {
		windows = wm.NewLister()
	}

	devices := o.devices
	if devices == nil && cfg.Audio {
		devices = portal.NewPulseNotifier(logger)
	}

	classifier := o.classifier
	if classifier == nil {
		classifier = codeClassifier(cfg.RecoverableCodes)
	}

	var emitter *descriptor.Emitter
	if o.descriptorW != nil {
		emitter = descriptor.NewEmitter(o.descriptorW)
	}

	mode := domain.AudioModeDual
	if cfg.AudioMode == "merged" {
		mode = domain.AudioModeMerged
	}

	session, err := app.NewSession(app.SessionConfig{
		OutputDir:        cfg.OutputDir,
		BaseName:         cfg.BaseName,
		FrameRate:        cfg.FrameRate,
		Duration:         cfg.Duration,
		AudioEnabled:     cfg.Audio,
		AudioMode:        mode,
		SampleRate:       cfg.SampleRate,
		VideoBitrateKbps: cfg.VideoBitrateKbps,
		AudioBitrateKbps: cfg.AudioBitrateKbps,
		KeyframeInterval: cfg.KeyframeInterval,
		MaskApps:         cfg.MaskApps,
		MaxRestarts:      cfg.MaxRestarts,
		BackoffInitial:   cfg.RestartPause,
		DrainTimeout:     cfg.DrainTimeout,
	}, app.SessionDeps{
		Displays:   displays,
		Source:     source,
		Sinks:      sinks,
		Windows:    windows,
		Devices:    devices,
		Classifier: classifier,
		Descriptor: emitter,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	return &Capture{session: session, source: ownedSource, logger: logger}, nil
}

// Run records until the session ends and returns the stop reason. The
// error is non-nil for error and device-change stops.
func (c *Capture) Run(ctx context.Context) (StopReason, error) {
	reason, err := c.session.Run(ctx)
	if c.source != nil {
		_ = c.source.Close()
	}
	return reason, err
}

// NoteSignal records the terminating signal number for the final
// descriptor stop line. Call before canceling the Run context.
func (c *Capture) NoteSignal(sig int) {
	c.session.NoteSignal(sig)
}

// SetMaskApps swaps the masked-application list while running.
func (c *Capture) SetMaskApps(apps []string) {
	if d := c.session.Detector(); d != nil {
		d.SetTargets(apps)
	}
}

// RestartCount reports how many recoverable restarts the session used.
func (c *Capture) RestartCount() int {
	return c.session.RestartCount()
}

func codeClassifier(codes map[string][]int) func(domain.StreamError) bool {
	return func(e domain.StreamError) bool {
		for _, code := range codes[e.Domain] {
			if code == e.Code {
				return true
			}
		}
		return false
	}
}
