package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/veilcap/veilcap/internal/domain"
	"github.com/veilcap/veilcap/internal/ports"
)

// audioChunk is the parec read granularity, 20ms of stereo s16le.
const audioChunkMillis = 20

// Source opens capture streams against the desktop portal. The portal
// session is created lazily on the first Displays call; it may pop a
// consent dialog, so that happens once per process.
type Source struct {
	sampleRate int
	logger     ports.Logger

	mu   sync.Mutex
	conn *dbus.Conn
	sess *castSession

	epochOnce sync.Once
	epoch     time.Time
}

// clockEpoch is the capture clock origin for the whole source. Every
// stream of every attempt stamps against it, so reused track writers
// never see time regress after a restart.
func (s *Source) clockEpoch() time.Time {
	s.epochOnce.Do(func() { s.epoch = time.Now() })
	return s.epoch
}

// NewSource returns an unconnected portal capture source.
func NewSource(sampleRate int, logger ports.Logger) *Source {
	return &Source{sampleRate: sampleRate, logger: logger}
}

// Displays implements ports.DisplayEnumerator.
func (s *Source) Displays(ctx context.Context) ([]domain.Display, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	return sess.displays(), nil
}

func (s *Source) session(ctx context.Context) (*castSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		return s.sess, nil
	}

	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, err := openCastSession(ctx, conn)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	s.sess = sess
	s.logger.Info("portal session opened", ports.Int("streams", len(sess.streams)))
	return sess, nil
}

// Close tears the portal session down, which revokes the capture grant.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		s.sess.close()
		s.sess = nil
	}
	return nil
}

// OpenStream implements ports.CaptureSource. Video frames are pumped
// from a gst-launch pipeline reading the display's PipeWire node; audio
// runs over parec against the default devices.
func (s *Source) OpenStream(ctx context.Context, cfg ports.StreamConfig, h ports.StreamHandler) (ports.CaptureStream, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	var node *portalStream
	for i := range sess.streams {
		if domain.DisplayID(sess.streams[i].nodeID) == cfg.Display.ID {
			node = &sess.streams[i]
			break
		}
	}
	if node == nil {
		return nil, fmt.Errorf("display %d not granted by portal", cfg.Display.ID)
	}

	st := &stream{
		handler: h,
		logger:  s.logger,
		epoch:   s.clockEpoch(),
		done:    make(chan struct{}),
	}
	if err := st.startVideo(node, cfg.FrameRate, s.logger); err != nil {
		return nil, err
	}
	if cfg.IncludeAudio {
		if err := st.startAudio(domain.AudioSystem, "@DEFAULT_MONITOR@", s.sampleRate); err != nil {
			st.kill()
			return nil, err
		}
		if err := st.startAudio(domain.AudioMicrophone, "@DEFAULT_SOURCE@", s.sampleRate); err != nil {
			st.kill()
			return nil, err
		}
	}
	return st, nil
}

// stream is one running per-display capture backed by helper processes.
type stream struct {
	handler ports.StreamHandler
	logger  ports.Logger
	epoch   time.Time

	mu    sync.Mutex
	procs []*exec.Cmd

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

func (st *stream) startVideo(node *portalStream, frameRate int, logger ports.Logger) error {
	width := int(node.size[0])
	height := int(node.size[1])
	pipeline := fmt.Sprintf(
		"pipewiresrc path=%d ! videoconvert ! videorate ! video/x-raw,format=I420,width=%d,height=%d,framerate=%d/1 ! fdsink fd=1",
		node.nodeID, width, height, frameRate,
	)
	cmd := exec.Command("gst-launch-1.0", "-q", pipeline)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("video pipeline stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start video pipeline: %w", err)
	}
	st.track(cmd)

	logger.Debug("video pipeline started",
		ports.Uint64("node", uint64(node.nodeID)),
		ports.Int("width", width),
		ports.Int("height", height))

	st.wg.Add(1)
	go st.pumpVideo(cmd, stdout, width, height)
	return nil
}

// pumpVideo reads fixed-size I420 frames and delivers them stamped
// against the source's capture clock.
func (st *stream) pumpVideo(cmd *exec.Cmd, r io.Reader, width, height int) {
	defer st.wg.Done()

	frameSize := width*height + 2*(width/2)*(height/2)
	for {
		frame := make([]byte, frameSize)
		if _, err := io.ReadFull(r, frame); err != nil {
			st.reportExit(cmd, "capture", err)
			return
		}
		luma := width * height
		chroma := (width / 2) * (height / 2)
		buf := &domain.FrameBuffer{
			Width:  width,
			Height: height,
			Planes: []domain.Plane{
				{Data: frame[:luma], Stride: width, SubX: 1, SubY: 1},
				{Data: frame[luma : luma+chroma], Stride: width / 2, SubX: 2, SubY: 2},
				{Data: frame[luma+chroma:], Stride: width / 2, SubX: 2, SubY: 2},
			},
		}
		st.handler.HandleEvent(domain.StreamEvent{
			Kind:  domain.EventVideoFrame,
			Video: &domain.VideoFrame{PTS: time.Since(st.epoch), Buffer: buf},
		})
	}
}

func (st *stream) startAudio(source domain.AudioSource, device string, sampleRate int) error {
	cmd := exec.Command("parec",
		"--format=s16le",
		"--rate="+strconv.Itoa(sampleRate),
		"--channels=2",
		"--device="+device,
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("audio pump stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start audio pump (%s): %w", source, err)
	}
	st.track(cmd)

	st.wg.Add(1)
	go st.pumpAudio(cmd, stdout, source, sampleRate)
	return nil
}

func (st *stream) pumpAudio(cmd *exec.Cmd, r io.Reader, source domain.AudioSource, sampleRate int) {
	defer st.wg.Done()

	chunkSize := sampleRate * 2 * 2 * audioChunkMillis / 1000
	for {
		chunk := make([]byte, chunkSize)
		if _, err := io.ReadFull(r, chunk); err != nil {
			st.reportExit(cmd, "audio", err)
			return
		}
		st.handler.HandleEvent(domain.StreamEvent{
			Kind: domain.EventAudioSample,
			Audio: &domain.AudioSample{
				PTS:        time.Since(st.epoch),
				Source:     source,
				SampleRate: sampleRate,
				PCM:        chunk,
			},
		})
	}
}

// reportExit turns an unexpected helper-process death into a stream
// error event. A read failure after Stop is expected and stays silent.
func (st *stream) reportExit(cmd *exec.Cmd, errDomain string, readErr error) {
	select {
	case <-st.done:
		return
	default:
	}

	code := 1
	var exitErr *exec.ExitError
	if err := cmd.Wait(); errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	st.handler.HandleEvent(domain.StreamEvent{
		Kind: domain.EventStreamError,
		Err: &domain.StreamError{
			Domain:  errDomain,
			Code:    code,
			Message: fmt.Sprintf("capture helper exited: %v", readErr),
		},
	})
}

func (st *stream) track(cmd *exec.Cmd) {
	st.mu.Lock()
	st.procs = append(st.procs, cmd)
	st.mu.Unlock()
}

func (st *stream) kill() {
	st.mu.Lock()
	procs := st.procs
	st.mu.Unlock()
	for _, cmd := range procs {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

// Stop implements ports.CaptureStream.
func (st *stream) Stop(ctx context.Context) error {
	st.stopOnce.Do(func() {
		close(st.done)
		st.kill()
	})

	st.mu.Lock()
	procs := st.procs
	st.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		st.wg.Wait()
		for _, cmd := range procs {
			_ = cmd.Wait()
		}
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
