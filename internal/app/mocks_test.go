package app

import (
	"context"
	"sync"
	"time"

	"github.com/veilcap/veilcap/internal/domain"
	"github.com/veilcap/veilcap/internal/ports"
	"github.com/veilcap/veilcap/pkg/log"
)

func testLogger() ports.Logger {
	return log.NewNoopLogger()
}

// mockSink is a ContainerSink recording appends and finalizes.
type mockSink struct {
	mu        sync.Mutex
	path      string
	samples   map[int][]ports.SinkSample
	ready     bool
	finalized int
	finalErr  error
	finalWait time.Duration
}

func newMockSink() *mockSink {
	return &mockSink{ready: true, samples: map[int][]ports.SinkSample{}}
}

func (m *mockSink) Append(track int, s ports.SinkSample) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return false
	}
	m.samples[track] = append(m.samples[track], s)
	return true
}

func (m *mockSink) Finalize(ctx context.Context) error {
	if m.finalWait > 0 {
		select {
		case <-time.After(m.finalWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized++
	return m.finalErr
}

func (m *mockSink) Path() string { return m.path }

func (m *mockSink) setReady(ready bool) {
	m.mu.Lock()
	m.ready = ready
	m.mu.Unlock()
}

func (m *mockSink) appended(track int) []ports.SinkSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.SinkSample(nil), m.samples[track]...)
}

func (m *mockSink) finalizeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}

// mockSinkFactory hands out mock sinks and remembers them.
type mockSinkFactory struct {
	mu       sync.Mutex
	video    []*mockSink
	audio    []*mockSink
	newErr   error
	audioErr error
}

func (f *mockSinkFactory) NewVideoSink(cfg ports.VideoSinkConfig) (ports.ContainerSink, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	s := newMockSink()
	s.path = cfg.Path
	f.mu.Lock()
	f.video = append(f.video, s)
	f.mu.Unlock()
	return s, nil
}

func (f *mockSinkFactory) NewAudioSink(cfg ports.AudioSinkConfig) (ports.ContainerSink, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	if f.audioErr != nil {
		return nil, f.audioErr
	}
	s := newMockSink()
	s.path = cfg.Path
	f.mu.Lock()
	f.audio = append(f.audio, s)
	f.mu.Unlock()
	return s, nil
}

// fakeEnumerator reports a fixed display list.
type fakeEnumerator struct {
	displays []domain.Display
	err      error
}

func (f *fakeEnumerator) Displays(ctx context.Context) ([]domain.Display, error) {
	return f.displays, f.err
}

// fakeStream is a CaptureStream whose handler the test drives directly.
type fakeStream struct {
	handler ports.StreamHandler
	cfg     ports.StreamConfig

	mu      sync.Mutex
	stopped bool
}

func (s *fakeStream) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// emit delivers an event unless the stream has been stopped, matching
// the capture service contract that delivery ends after Stop.
func (s *fakeStream) emit(ev domain.StreamEvent) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if !stopped {
		s.handler.HandleEvent(ev)
	}
}

// fakeSource hands out fakeStreams and tracks every open.
type fakeSource struct {
	mu      sync.Mutex
	streams []*fakeStream
	openErr error
	// failOpens makes the first N opens fail.
	failOpens int
	opened    chan *fakeStream
}

func newFakeSource() *fakeSource {
	return &fakeSource{opened: make(chan *fakeStream, 16)}
}

func (f *fakeSource) OpenStream(ctx context.Context, cfg ports.StreamConfig, h ports.StreamHandler) (ports.CaptureStream, error) {
	f.mu.Lock()
	if f.failOpens > 0 {
		f.failOpens--
		err := f.openErr
		f.mu.Unlock()
		if err == nil {
			err = context.DeadlineExceeded
		}
		return nil, err
	}
	st := &fakeStream{handler: h, cfg: cfg}
	f.streams = append(f.streams, st)
	f.mu.Unlock()
	select {
	case f.opened <- st:
	default:
	}
	return st, nil
}

func (f *fakeSource) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

// fakeNotifier is a scriptable DeviceNotifier.
type fakeNotifier struct {
	mu       sync.Mutex
	hints    chan ports.DeviceSide
	defaults map[ports.DeviceSide]string
	subErr   error
	unsubbed int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		hints: make(chan ports.DeviceSide, 8),
		defaults: map[ports.DeviceSide]string{
			ports.DeviceInput:  "mic-0",
			ports.DeviceOutput: "speakers-0",
		},
	}
}

func (f *fakeNotifier) Subscribe(ctx context.Context) (<-chan ports.DeviceSide, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	return f.hints, nil
}

func (f *fakeNotifier) Unsubscribe() error {
	f.mu.Lock()
	f.unsubbed++
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) DefaultDevice(side ports.DeviceSide) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.defaults[side], nil
}

func (f *fakeNotifier) setDefault(side ports.DeviceSide, id string) {
	f.mu.Lock()
	f.defaults[side] = id
	f.mu.Unlock()
}

func (f *fakeNotifier) hint(side ports.DeviceSide) {
	f.hints <- side
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
