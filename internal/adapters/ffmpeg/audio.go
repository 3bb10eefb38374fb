package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"sync"

	"github.com/veilcap/veilcap/internal/domain"
	"github.com/veilcap/veilcap/internal/ports"
)

// Track indices accepted by AudioSink.Append.
const (
	AudioTrackSystem     = 0
	AudioTrackMicrophone = 1
)

// AudioSink encodes two PCM streams into one AAC MP4 file. System audio
// is fed over stdin; microphone audio goes through a loopback TCP relay
// because ffmpeg only has one stdin. Dual mode maps both streams as
// separate tracks, merged mode mixes them with amix.
type AudioSink struct {
	path   string
	cmd    *exec.Cmd
	system *feedQueue
	mic    *feedQueue
	stderr *tailBuffer
	logger ports.Logger

	waitOnce sync.Once
	waitErr  error
}

// NewAudioSink starts the audio encoder process.
func NewAudioSink(ffmpegPath string, cfg ports.AudioSinkConfig, logger ports.Logger) (*AudioSink, error) {
	rate := strconv.Itoa(cfg.SampleRate)
	bitrate := strconv.Itoa(cfg.BitrateKbps) + "k"

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("audio relay listener: %w", err)
	}
	micURL := "tcp://" + listener.Addr().String()

	args := []string{
		"-hide_banner",
		"-thread_queue_size", "512",
		"-f", "s16le", "-ar", rate, "-ac", "2",
		"-i", "pipe:0",
		"-thread_queue_size", "512",
		"-f", "s16le", "-ar", rate, "-ac", "2",
		"-i", micURL,
	}
	switch cfg.Mode {
	case domain.AudioModeMerged:
		args = append(args,
			"-filter_complex", "[0:a][1:a]amix=inputs=2:duration=longest:dropout_transition=0[a]",
			"-map", "[a]",
			"-c:a", "aac", "-b:a", bitrate,
		)
	default:
		args = append(args,
			"-map", "0:a", "-map", "1:a",
			"-c:a", "aac", "-b:a", bitrate,
			"-metadata:s:a:0", "title=system",
			"-metadata:s:a:1", "title=microphone",
		)
	}
	args = append(args, "-movflags", "+faststart", "-y", cfg.Path)

	stderr := &tailBuffer{limit: 4096}
	cmd := exec.Command(ffmpegPath, args...)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("audio encoder stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		listener.Close()
		return nil, fmt.Errorf("start audio encoder: %w", err)
	}

	micPR, micPW := io.Pipe()
	go func() {
		defer listener.Close()
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			micPR.CloseWithError(acceptErr)
			return
		}
		defer conn.Close()
		_, _ = io.Copy(conn, micPR)
	}()

	logger.Debug("audio encoder started",
		ports.String("path", cfg.Path),
		ports.String("mode", cfg.Mode.String()),
		ports.String("relay", micURL))

	return &AudioSink{
		path:   cfg.Path,
		cmd:    cmd,
		system: newFeedQueue("audio-system", stdin, audioQueueDepth, logger),
		mic:    newFeedQueue("audio-mic", micPW, audioQueueDepth, logger),
		stderr: stderr,
		logger: logger,
	}, nil
}

// Append routes one PCM chunk to the track's input feed.
func (s *AudioSink) Append(track int, sample ports.SinkSample) bool {
	switch track {
	case AudioTrackSystem:
		return s.system.enqueue(sample.Payload)
	case AudioTrackMicrophone:
		return s.mic.enqueue(sample.Payload)
	default:
		return false
	}
}

// Finalize closes both input feeds and waits for the encoder to exit.
func (s *AudioSink) Finalize(ctx context.Context) error {
	s.system.close()
	s.mic.close()

	done := make(chan struct{})
	go func() {
		s.waitOnce.Do(func() { s.waitErr = s.cmd.Wait() })
		close(done)
	}()

	select {
	case <-done:
		if s.waitErr != nil {
			return fmt.Errorf("audio encoder exit: %w: %s", s.waitErr, s.stderr.tail())
		}
		return nil
	case <-ctx.Done():
		_ = s.cmd.Process.Kill()
		<-done
		return fmt.Errorf("audio encoder finalize: %w", ctx.Err())
	}
}

// Path returns the output file path.
func (s *AudioSink) Path() string { return s.path }
