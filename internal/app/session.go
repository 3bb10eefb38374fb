package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/veilcap/veilcap/internal/descriptor"
	"github.com/veilcap/veilcap/internal/domain"
	"github.com/veilcap/veilcap/internal/mask"
	"github.com/veilcap/veilcap/internal/ports"
)

// Defaults for session timing knobs.
const (
	DefaultDrainTimeout    = 5 * time.Second
	DefaultFinalizeTimeout = 10 * time.Second
	DefaultMaxRestarts     = 3
	DefaultSampleRate      = 48000
)

// SessionConfig holds the resolved capture configuration.
type SessionConfig struct {
	OutputDir string
	BaseName  string

	FrameRate int

	// Duration bounds the capture in retimed time; 0 means capture
	// until interrupted.
	Duration time.Duration

	AudioEnabled bool
	AudioMode    domain.AudioMode
	SampleRate   int

	VideoBitrateKbps int
	AudioBitrateKbps int
	KeyframeInterval int

	// MaskApps are the application names whose windows are blacked out.
	MaskApps []string

	// MaxRestarts caps recoverable-error restarts for the session.
	MaxRestarts int

	// DrainTimeout bounds the shutdown wait for finalize callbacks so
	// the process is guaranteed to exit.
	DrainTimeout time.Duration

	// FinalizeTimeout bounds each container finalize.
	FinalizeTimeout time.Duration

	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

func (c *SessionConfig) setDefaults() {
	if c.MaxRestarts == 0 {
		c.MaxRestarts = DefaultMaxRestarts
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = DefaultFinalizeTimeout
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = DefaultBackoffInitial
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
}

// SessionDeps are the ports a session is wired with. Windows, Devices
// and Descriptor are optional; the corresponding features are skipped
// when nil.
type SessionDeps struct {
	Displays   ports.DisplayEnumerator
	Source     ports.CaptureSource
	Sinks      ports.SinkFactory
	Windows    ports.WindowLister
	Devices    ports.DeviceNotifier
	Classifier func(domain.StreamError) bool
	Descriptor *descriptor.Emitter
	Logger     ports.Logger
}

// displayTarget pairs an enumerated display with its session-scoped
// video writer. Created once in Starting and reused across restarts so
// output stays one continuous file per display.
type displayTarget struct {
	display domain.Display
	writer  *TrackWriter
	sink    ports.ContainerSink
	path    string
}

// Session is the top-level capture orchestrator: it owns the display
// targets, the audio writer pair, and the transient capture streams of
// each attempt, and runs the state machine
// Idle → Starting → Running → {Completing|Restarting|Aborting} →
// Draining → Terminated.
type Session struct {
	cfg  SessionConfig
	deps SessionDeps

	lifecycle *Lifecycle
	detector  *mask.Detector
	masker    *mask.Masker
	monitor   *DeviceMonitor

	targets      []*displayTarget
	audioWriters map[domain.AudioSource]*TrackWriter
	audioPath    string
	writers      []*TrackWriter

	errCh chan classifiedError

	restartCount int
	deadline     time.Time
	signalNum    atomic.Int32
}

// NewSession creates a session. Run may be called once.
func NewSession(cfg SessionConfig, deps SessionDeps) (*Session, error) {
	cfg.setDefaults()
	if deps.Displays == nil || deps.Source == nil || deps.Sinks == nil {
		return nil, fmt.Errorf("%w: displays, source and sinks are required", domain.ErrInvalidConfig)
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("%w: logger is required", domain.ErrInvalidConfig)
	}

	s := &Session{
		cfg:    cfg,
		deps:   deps,
		errCh:  make(chan classifiedError, 4),
		masker: mask.NewMasker(),
	}
	s.lifecycle = NewLifecycle(deps.Logger)

	if deps.Windows != nil {
		s.detector = mask.NewDetector(deps.Windows, deps.Logger)
		s.detector.SetTargets(cfg.MaskApps)
	}
	if deps.Devices != nil && cfg.AudioEnabled {
		s.monitor = NewDeviceMonitor(deps.Devices, deps.Logger)
	}
	return s, nil
}

// Detector returns the mask detector, or nil when window enumeration
// is not wired. The mask-file watcher pushes target updates through it.
func (s *Session) Detector() *mask.Detector {
	return s.detector
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.lifecycle.State()
}

// RestartCount returns the number of restarts performed so far.
func (s *Session) RestartCount() int {
	return s.restartCount
}

// NoteSignal records the interrupt signal number for the terminal
// stop line. Called from the signal watcher before it cancels the run
// context; a plain atomic store, safe from any goroutine.
func (s *Session) NoteSignal(sig int) {
	s.signalNum.Store(int32(sig))
}

// Run executes the capture session until a terminal outcome and
// returns the stop reason together with the fatal error, if any.
// Cancelling ctx is the graceful interrupt path: streams stop and
// writers drain before Run returns.
func (s *Session) Run(ctx context.Context) (domain.StopReason, error) {
	if !s.lifecycle.CanStart() {
		return domain.StopError, domain.ErrAlreadyRunning
	}
	if err := s.lifecycle.TransitionTo(StateStarting, "Run() called"); err != nil {
		return domain.StopError, err
	}

	if err := s.setup(ctx); err != nil {
		_ = s.lifecycle.TransitionTo(StateAborting, "setup failed")
		_ = s.lifecycle.TransitionTo(StateDraining, "setup failed")
		// Sinks constructed before the failure still get finalized.
		if drainErr := s.drain(); drainErr != nil {
			s.deps.Logger.Warn("drain after failed setup", ports.Err(drainErr))
		}
		s.emitStop(domain.StopError, err)
		_ = s.lifecycle.TransitionTo(StateTerminated, "setup failed")
		return domain.StopError, err
	}
	defer func() {
		if s.monitor != nil {
			s.monitor.Stop()
		}
	}()

	reason, runErr := s.runAttempts(ctx)

	_ = s.lifecycle.TransitionTo(StateDraining, reason.String())
	if drainErr := s.drain(); drainErr != nil && runErr == nil {
		runErr = drainErr
		if reason == domain.StopCompleted {
			reason = domain.StopError
		}
	}

	s.emitStop(reason, runErr)
	_ = s.lifecycle.TransitionTo(StateTerminated, reason.String())
	return reason, runErr
}

// setup enumerates displays, validates output paths, and constructs
// the session-scoped sinks and writers. Runs once; restarts reuse
// everything built here.
func (s *Session) setup(ctx context.Context) error {
	displays, err := s.deps.Displays.Displays(ctx)
	if err != nil {
		return fmt.Errorf("enumerate displays: %w", err)
	}
	if len(displays) == 0 {
		return fmt.Errorf("%w: no displays to capture", domain.ErrInvalidConfig)
	}

	paths := map[string]bool{}
	claim := func(p string) error {
		if paths[p] {
			return fmt.Errorf("%w: %s", domain.ErrOutputCollision, p)
		}
		paths[p] = true
		return nil
	}

	for i, d := range displays {
		path := filepath.Join(s.cfg.OutputDir, fmt.Sprintf("%s-display-%d.mp4", s.cfg.BaseName, d.ID))
		if err := claim(path); err != nil {
			return err
		}

		sink, err := s.deps.Sinks.NewVideoSink(ports.VideoSinkConfig{
			Path:             path,
			Width:            d.Width,
			Height:           d.Height,
			FrameRate:        s.cfg.FrameRate,
			BitrateKbps:      s.cfg.VideoBitrateKbps,
			KeyframeInterval: s.cfg.KeyframeInterval,
		})
		if err != nil {
			return fmt.Errorf("video sink for display %d: %w", d.ID, err)
		}

		group := NewWriterGroup(sink, s.cfg.FinalizeTimeout, s.deps.Logger, WriterConfig{
			Name:     fmt.Sprintf("video-%d", d.ID),
			Track:    0,
			Duration: s.cfg.Duration,
		})
		s.targets = append(s.targets, &displayTarget{
			display: d,
			writer:  group[0],
			sink:    sink,
			path:    path,
		})
		s.writers = append(s.writers, group[0])

		if s.deps.Descriptor != nil {
			if err := s.deps.Descriptor.VideoFile(path, d, s.cfg.FrameRate); err != nil {
				return err
			}
		}
		s.deps.Logger.Info("capture target",
			ports.Int("stream", i),
			ports.Uint64("display", uint64(d.ID)),
			ports.Int("width", d.Width),
			ports.Int("height", d.Height),
			ports.String("path", path),
		)
	}

	if s.cfg.AudioEnabled {
		s.audioPath = filepath.Join(s.cfg.OutputDir, s.cfg.BaseName+"-audio.m4a")
		if err := claim(s.audioPath); err != nil {
			return err
		}

		sink, err := s.deps.Sinks.NewAudioSink(ports.AudioSinkConfig{
			Path:        s.audioPath,
			SampleRate:  s.cfg.SampleRate,
			Mode:        s.cfg.AudioMode,
			BitrateKbps: s.cfg.AudioBitrateKbps,
		})
		if err != nil {
			return fmt.Errorf("audio sink: %w", err)
		}

		group := NewWriterGroup(sink, s.cfg.FinalizeTimeout, s.deps.Logger,
			WriterConfig{Name: "audio-system", Track: 0, Duration: s.cfg.Duration},
			WriterConfig{Name: "audio-microphone", Track: 1, Duration: s.cfg.Duration},
		)
		s.audioWriters = map[domain.AudioSource]*TrackWriter{
			domain.AudioSystem:     group[0],
			domain.AudioMicrophone: group[1],
		}
		s.writers = append(s.writers, group...)

		if s.deps.Descriptor != nil {
			if err := s.deps.Descriptor.AudioFile(s.audioPath, s.cfg.SampleRate, s.cfg.AudioMode); err != nil {
				return err
			}
		}
	}

	if s.monitor != nil {
		if err := s.monitor.Start(ctx); err != nil {
			return fmt.Errorf("device monitor: %w", err)
		}
	}
	return nil
}

// runAttempts loops over capture attempts until a terminal outcome.
func (s *Session) runAttempts(ctx context.Context) (domain.StopReason, error) {
	pause := newBackoff(s.cfg.BackoffInitial, s.cfg.BackoffMax)
	lastCause := ""

	for {
		// One incident can emit a burst of classified errors (every
		// helper process of the dying attempt reports its exit). The
		// first one decided this attempt's outcome; the rest are stale
		// and must not charge the next attempt.
		s.flushErrors()

		streams, err := s.openStreams(ctx)
		if err != nil {
			if s.restartCount == 0 {
				_ = s.lifecycle.TransitionTo(StateAborting, "stream setup failed")
				return domain.StopError, err
			}
			// Reopen failures during a restart burn the same budget as
			// the errors that caused them.
			s.deps.Logger.Warn("stream reopen failed", ports.Err(err))
			if reason, fatalErr := s.noteRestart(lastCause, err); fatalErr != nil {
				return reason, fatalErr
			}
			if err := pause.Sleep(ctx); err != nil {
				_ = s.lifecycle.TransitionTo(StateAborting, "interrupted")
				return domain.StopSignal, nil
			}
			continue
		}

		if s.monitor != nil {
			if err := s.monitor.Arm(); err != nil {
				s.deps.Logger.Warn("device monitor arm failed", ports.Err(err))
			}
		}
		if s.deadline.IsZero() && s.cfg.Duration > 0 {
			s.deadline = time.Now().Add(s.cfg.Duration)
		}
		_ = s.lifecycle.TransitionTo(StateRunning, fmt.Sprintf("attempt %d", s.restartCount+1))

		o := s.await(ctx)
		s.stopStreams(streams)

		switch o.kind {
		case outcomeCompleted:
			_ = s.lifecycle.TransitionTo(StateCompleting, "capture complete")
			return domain.StopCompleted, nil

		case outcomeSignal:
			_ = s.lifecycle.TransitionTo(StateAborting, "interrupt")
			return domain.StopSignal, nil

		case outcomeAbort:
			_ = s.lifecycle.TransitionTo(StateAborting, o.cause)
			return domain.StopError, o.err

		case outcomeRestart:
			_ = s.lifecycle.TransitionTo(StateRestarting, o.cause)
			lastCause = o.cause
			if reason, fatalErr := s.noteRestart(o.cause, o.err); fatalErr != nil {
				return reason, fatalErr
			}
			if err := pause.Sleep(ctx); err != nil {
				_ = s.lifecycle.TransitionTo(StateAborting, "interrupted")
				return domain.StopSignal, nil
			}
			_ = s.lifecycle.TransitionTo(StateStarting, o.cause)
		}
	}
}

// noteRestart increments the restart counter and escalates to fatal
// when the cap is exceeded.
func (s *Session) noteRestart(cause string, cause2 error) (domain.StopReason, error) {
	s.restartCount++
	s.deps.Logger.Info("restarting capture",
		ports.Int("restart", s.restartCount),
		ports.Int("max", s.cfg.MaxRestarts),
		ports.String("cause", cause),
	)
	if s.restartCount <= s.cfg.MaxRestarts {
		return 0, nil
	}

	_ = s.lifecycle.TransitionTo(StateAborting, "restart limit")
	err := domain.ErrRestartLimit
	if cause2 != nil {
		err = fmt.Errorf("%w: %w", domain.ErrRestartLimit, cause2)
	}
	if cause == causeDeviceChange {
		return domain.StopDeviceChange, err
	}
	return domain.StopError, err
}

const causeDeviceChange = "device-change"

// outcome is the winning completion source of one Running period.
type outcomeKind int

const (
	outcomeCompleted outcomeKind = iota
	outcomeRestart
	outcomeAbort
	outcomeSignal
)

type outcome struct {
	kind  outcomeKind
	cause string
	err   error
}

// await blocks on the first of the independent completion sources:
// audio-writer completion, the fixed-duration timer when audio is
// disabled, a classified stream error, a device-change restart
// request, or the interrupt context. The sources race into one
// single-resolution slot; later resolvers are no-ops and their
// underlying waits are simply abandoned.
func (s *Session) await(ctx context.Context) outcome {
	res := make(chan outcome, 1)
	resolve := func(o outcome) {
		select {
		case res <- o:
		default:
		}
	}

	attemptCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if s.cfg.AudioEnabled && len(s.audioWriters) > 0 {
		writers := []*TrackWriter{
			s.audioWriters[domain.AudioSystem],
			s.audioWriters[domain.AudioMicrophone],
		}
		go func() {
			for _, w := range writers {
				select {
				case <-w.Done():
				case <-attemptCtx.Done():
					return
				}
			}
			resolve(outcome{kind: outcomeCompleted, cause: "audio complete"})
		}()
	} else if !s.deadline.IsZero() {
		go func() {
			timer := time.NewTimer(time.Until(s.deadline))
			defer timer.Stop()
			select {
			case <-timer.C:
				resolve(outcome{kind: outcomeCompleted, cause: "duration elapsed"})
			case <-attemptCtx.Done():
			}
		}()
	}

	var changes <-chan ports.DeviceSide
	if s.monitor != nil {
		changes = s.monitor.Changes()
	}

	select {
	case o := <-res:
		return o
	case ce := <-s.errCh:
		if ce.recoverable {
			return outcome{kind: outcomeRestart, cause: "recoverable stream error", err: ce.err}
		}
		return outcome{kind: outcomeAbort, cause: "fatal stream error", err: ce.err}
	case side := <-changes:
		return outcome{kind: outcomeRestart, cause: causeDeviceChange, err: domain.StreamError{
			Domain:  "device",
			Code:    int(side),
			Message: "default " + side.String() + " device changed",
		}}
	case <-ctx.Done():
		return outcome{kind: outcomeSignal, cause: "interrupt"}
	}
}

// openStreams builds one capture stream per display; stream 0
// additionally carries the audio channels.
func (s *Session) openStreams(ctx context.Context) ([]ports.CaptureStream, error) {
	streams := make([]ports.CaptureStream, 0, len(s.targets))
	for i, tgt := range s.targets {
		out := &StreamOutput{
			display:  tgt.display,
			video:    tgt.writer,
			detector: s.detector,
			masker:   s.masker,
			classify: s.deps.Classifier,
			errs:     s.errCh,
			logger:   s.deps.Logger,
		}
		includeAudio := i == 0 && s.cfg.AudioEnabled
		if includeAudio {
			out.audio = s.audioWriters
		}

		stream, err := s.deps.Source.OpenStream(ctx, ports.StreamConfig{
			Display:      tgt.display,
			FrameRate:    s.cfg.FrameRate,
			IncludeAudio: includeAudio,
		}, out)
		if err != nil {
			s.stopStreams(streams)
			return nil, fmt.Errorf("open stream %d: %w", i, err)
		}
		streams = append(streams, stream)
	}
	return streams, nil
}

// stopStreams halts streams best-effort; stop errors are logged, never
// fatal.
func (s *Session) stopStreams(streams []ports.CaptureStream) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i, st := range streams {
		if err := st.Stop(ctx); err != nil {
			s.deps.Logger.Warn("stream stop failed", ports.Int("stream", i), ports.Err(err))
		}
	}
}

// drain requests every writer to finish and awaits the finalize
// callbacks, bounded so the process is guaranteed to exit. Individual
// finalize failures are collected but never block the other tracks.
func (s *Session) drain() error {
	s.finishAllTracks()

	done := make(chan struct{})
	go func() {
		for _, w := range s.writers {
			<-w.Done()
		}
		close(done)
	}()

	timer := time.NewTimer(s.cfg.DrainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.deps.Logger.Warn("drain timeout", ports.Duration("timeout", s.cfg.DrainTimeout))
		return domain.ErrDrainTimeout
	}

	var firstErr error
	for _, w := range s.writers {
		if err := w.Err(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// flushErrors discards stream errors queued by a previous attempt.
func (s *Session) flushErrors() {
	for {
		select {
		case <-s.errCh:
		default:
			return
		}
	}
}

// finishAllTracks requests every writer to finish. Idempotent: writers
// already finishing or finished ignore the request.
func (s *Session) finishAllTracks() {
	for _, w := range s.writers {
		w.Finish()
	}
}

func (s *Session) emitStop(reason domain.StopReason, err error) {
	if s.deps.Descriptor == nil {
		return
	}
	var streamErr *domain.StreamError
	var se domain.StreamError
	if errors.As(err, &se) {
		streamErr = &se
	}
	if emitErr := s.deps.Descriptor.Stop(reason, streamErr, int(s.signalNum.Load())); emitErr != nil {
		s.deps.Logger.Warn("stop line emit failed", ports.Err(emitErr))
	}
}
