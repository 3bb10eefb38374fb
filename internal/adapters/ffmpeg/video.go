package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/veilcap/veilcap/internal/ports"
)

// VideoSink encodes raw I420 frames into an H.264 MP4 file through an
// ffmpeg subprocess. Frames arrive over stdin as packed planes.
type VideoSink struct {
	path   string
	cmd    *exec.Cmd
	queue  *feedQueue
	stderr *tailBuffer
	logger ports.Logger

	waitOnce sync.Once
	waitErr  error
}

// NewVideoSink starts the encoder process for one display's output file.
func NewVideoSink(ffmpegPath string, plan encoderPlan, cfg ports.VideoSinkConfig, logger ports.Logger) (*VideoSink, error) {
	gop := strconv.Itoa(cfg.KeyframeInterval)
	bitrate := strconv.Itoa(cfg.BitrateKbps)

	args := []string{
		"-hide_banner",
		"-fflags", "nobuffer",
		"-thread_queue_size", "64",
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", strconv.Itoa(cfg.FrameRate),
		"-i", "pipe:0",
	}
	args = append(args, plan.globalArgs...)
	args = append(args, plan.pixelArgs...)
	args = append(args,
		"-c:v", plan.codec,
		"-b:v", bitrate+"k",
		"-maxrate", bitrate+"k",
		"-bufsize", strconv.Itoa(cfg.BitrateKbps*2)+"k",
		"-g", gop,
		"-keyint_min", gop,
		"-sc_threshold", "0",
	)
	if !plan.hardware {
		args = append(args, "-preset", "ultrafast", "-tune", "zerolatency", "-pix_fmt", "yuv420p")
	}
	args = append(args, "-movflags", "+faststart", "-y", cfg.Path)

	stderr := &tailBuffer{limit: 4096}
	cmd := exec.Command(ffmpegPath, args...)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("video encoder stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start video encoder: %w", err)
	}

	logger.Debug("video encoder started",
		ports.String("path", cfg.Path),
		ports.String("encoder", plan.label))

	return &VideoSink{
		path:   cfg.Path,
		cmd:    cmd,
		queue:  newFeedQueue("video", stdin, videoQueueDepth, logger),
		stderr: stderr,
		logger: logger,
	}, nil
}

// Append offers one packed frame to the encoder. Returns false when the
// encoder is not keeping up and the frame was refused.
func (s *VideoSink) Append(track int, sample ports.SinkSample) bool {
	if track != 0 {
		return false
	}
	return s.queue.enqueue(sample.Payload)
}

// Finalize stops the input feed and waits for the encoder to flush and
// close the container. Safe to call once per sink.
func (s *VideoSink) Finalize(ctx context.Context) error {
	s.queue.close()

	done := make(chan struct{})
	go func() {
		s.waitOnce.Do(func() { s.waitErr = s.cmd.Wait() })
		close(done)
	}()

	select {
	case <-done:
		if s.waitErr != nil {
			return fmt.Errorf("video encoder exit: %w: %s", s.waitErr, s.stderr.tail())
		}
		return nil
	case <-ctx.Done():
		_ = s.cmd.Process.Kill()
		<-done
		return fmt.Errorf("video encoder finalize: %w", ctx.Err())
	}
}

// Path returns the output file path.
func (s *VideoSink) Path() string { return s.path }

// tailBuffer retains the last part of a process's stderr for error
// reporting without growing unbounded on chatty output.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) tail() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
