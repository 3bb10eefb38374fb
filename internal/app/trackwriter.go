package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veilcap/veilcap/internal/domain"
	"github.com/veilcap/veilcap/internal/ports"
)

// WriterState is the per-track writer state.
type WriterState int

const (
	WriterNotStarted WriterState = iota
	WriterWriting
	WriterFinishing
	WriterFinished
	WriterFailed
)

// String returns a human-readable representation of the state.
func (s WriterState) String() string {
	switch s {
	case WriterNotStarted:
		return "NotStarted"
	case WriterWriting:
		return "Writing"
	case WriterFinishing:
		return "Finishing"
	case WriterFinished:
		return "Finished"
	case WriterFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

const dropLogInterval = time.Second

// WriterConfig configures one track writer.
type WriterConfig struct {
	// Name labels the writer in logs ("video-0", "audio-system").
	Name string

	// Track is the sink track index this writer feeds.
	Track int

	// Duration is the capture length in retimed time; 0 means
	// indefinite. Once elapsed retimed time reaches Duration no
	// further samples are accepted and the writer finishes.
	Duration time.Duration

	// OnComplete, when set, fires exactly once after the container
	// finalize resolves, with its error if any.
	OnComplete func(error)
}

// TrackWriter is a per-track sample sink. It owns the track's state
// machine, retimes samples so the track starts at time zero, and
// drives the shared container finalize through its finalizer.
//
// Append is safe to call concurrently with Finish: state and
// timestamps are guarded by a short-held mutex, and the container
// append itself happens outside the lock since it may block inside
// the sink.
type TrackWriter struct {
	cfg    WriterConfig
	sink   ports.ContainerSink
	fin    *finalizer
	logger ports.Logger

	mu    sync.Mutex
	state WriterState
	zero  time.Duration
	last  time.Duration

	dropped     atomic.Uint64
	lastDropLog atomic.Int64

	done chan struct{}
	err  error
}

// NewWriterGroup creates one writer per config, all feeding the given
// sink. The sink is finalized once, after every writer in the group
// has reached Finishing; then each writer's completion fires. A group
// of one models a per-display video container, a group of two the
// dual-track audio container.
func NewWriterGroup(sink ports.ContainerSink, finalizeTimeout time.Duration, logger ports.Logger, cfgs ...WriterConfig) []*TrackWriter {
	fin := &finalizer{
		sink:    sink,
		timeout: finalizeTimeout,
		logger:  logger,
		pending: len(cfgs),
	}
	writers := make([]*TrackWriter, len(cfgs))
	for i, cfg := range cfgs {
		writers[i] = &TrackWriter{
			cfg:    cfg,
			sink:   sink,
			fin:    fin,
			logger: logger,
			done:   make(chan struct{}),
		}
	}
	fin.writers = writers
	return writers
}

// Append offers one sample to the track. The first accepted sample's
// timestamp becomes the track's zero point; every later sample is
// retimed relative to it, so the output container starts at time zero
// regardless of the capture service's absolute clock.
//
// Returns domain.ErrWriterFinished when the writer no longer accepts
// samples. A sink that is not ready drops the sample silently apart
// from a throttled counter log; bounded memory wins over completeness.
func (w *TrackWriter) Append(pts time.Duration, payload []byte, sync bool) error {
	w.mu.Lock()
	switch w.state {
	case WriterNotStarted:
		w.zero = pts
		w.state = WriterWriting
		w.logger.Info("track opened",
			ports.String("track", w.cfg.Name),
			ports.Duration("zero_point", pts),
		)
	case WriterWriting:
	default:
		w.mu.Unlock()
		return domain.ErrWriterFinished
	}

	out := pts - w.zero
	if out < 0 {
		out = 0
	}
	if w.cfg.Duration > 0 && out >= w.cfg.Duration {
		w.mu.Unlock()
		w.Finish()
		return domain.ErrWriterFinished
	}
	w.last = out
	w.mu.Unlock()

	if !w.sink.Append(w.cfg.Track, ports.SinkSample{PTS: out, Payload: payload, Sync: sync}) {
		w.countDrop()
	}
	return nil
}

// Finish requests the writer to stop accepting samples and finalize.
// Idempotent: repeated calls after the first are no-ops and never
// re-invoke completion. The transition to Finished or Failed is
// asynchronous; observe it via Done.
func (w *TrackWriter) Finish() {
	w.mu.Lock()
	switch w.state {
	case WriterFinishing, WriterFinished, WriterFailed:
		w.mu.Unlock()
		return
	}
	w.state = WriterFinishing
	last := w.last
	w.mu.Unlock()

	w.logger.Info("track finishing",
		ports.String("track", w.cfg.Name),
		ports.Duration("elapsed", last),
		ports.Uint64("dropped", w.dropped.Load()),
	)
	w.fin.trackFinishing()
}

// State returns the current writer state.
func (w *TrackWriter) State() WriterState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Elapsed returns the retimed timestamp of the last accepted sample.
func (w *TrackWriter) Elapsed() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Dropped returns the number of samples dropped on sink backpressure.
func (w *TrackWriter) Dropped() uint64 {
	return w.dropped.Load()
}

// Done is closed once the writer reaches Finished or Failed.
func (w *TrackWriter) Done() <-chan struct{} {
	return w.done
}

// Err returns the finalize error, if any, once Done is closed.
func (w *TrackWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *TrackWriter) countDrop() {
	total := w.dropped.Add(1)

	now := time.Now().UnixNano()
	last := w.lastDropLog.Load()
	if now-last < int64(dropLogInterval) {
		return
	}
	if w.lastDropLog.CompareAndSwap(last, now) {
		w.logger.Warn("sink not ready, dropping samples",
			ports.String("track", w.cfg.Name),
			ports.Uint64("dropped_total", total),
		)
	}
}

// complete records the finalize outcome. Guarded so completion fires
// exactly once even if finalize raced with a duplicate Finish.
func (w *TrackWriter) complete(err error) {
	w.mu.Lock()
	switch w.state {
	case WriterFinished, WriterFailed:
		w.mu.Unlock()
		return
	}
	if err != nil {
		w.state = WriterFailed
		w.err = err
	} else {
		w.state = WriterFinished
	}
	cb := w.cfg.OnComplete
	w.mu.Unlock()

	close(w.done)
	if err != nil {
		w.logger.Error("track failed", ports.String("track", w.cfg.Name), ports.Err(err))
	} else {
		w.logger.Info("track finished", ports.String("track", w.cfg.Name))
	}
	if cb != nil {
		cb(err)
	}
}

// finalizer finalizes a shared container sink once every writer
// feeding it has reached Finishing.
type finalizer struct {
	sink    ports.ContainerSink
	timeout time.Duration
	logger  ports.Logger

	mu       sync.Mutex
	pending  int
	launched bool
	writers  []*TrackWriter
}

func (f *finalizer) trackFinishing() {
	f.mu.Lock()
	f.pending--
	launch := f.pending <= 0 && !f.launched
	if launch {
		f.launched = true
	}
	f.mu.Unlock()

	if launch {
		go f.run()
	}
}

func (f *finalizer) run() {
	ctx := context.Background()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	err := f.sink.Finalize(ctx)
	for _, w := range f.writers {
		w.complete(err)
	}
}
