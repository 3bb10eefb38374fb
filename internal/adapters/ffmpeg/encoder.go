package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/veilcap/veilcap/internal/ports"
)

const encoderProbeTimeout = 5 * time.Second

// encoderPlan describes one H.264 encoder candidate and its arguments.
type encoderPlan struct {
	label      string
	codec      string
	hardware   bool
	globalArgs []string
	pixelArgs  []string
}

// selectEncoder picks the best available H.264 encoder: hardware
// candidates are probed in order and libx264 is the fallback.
func selectEncoder(ffmpegPath string, logger ports.Logger) encoderPlan {
	software := encoderPlan{label: "libx264", codec: "libx264"}

	if _, err := exec.LookPath(ffmpegPath); err != nil {
		logger.Debug("ffmpeg lookup failed, assuming software encoder", ports.Err(err))
		return software
	}

	available, err := encoderSet(ffmpegPath)
	if err != nil {
		logger.Debug("ffmpeg encoder listing failed", ports.Err(err))
	}

	for _, candidate := range hardwareCandidates() {
		if len(available) > 0 {
			if _, ok := available[candidate.codec]; !ok {
				continue
			}
		}
		if err := probeEncoder(ffmpegPath, candidate); err != nil {
			logger.Debug("encoder probe failed",
				ports.String("encoder", candidate.label),
				ports.Err(err))
			continue
		}
		logger.Info("video encoder selected",
			ports.String("encoder", candidate.label),
			ports.Bool("hardware", true))
		return candidate
	}

	logger.Info("video encoder selected",
		ports.String("encoder", software.label),
		ports.Bool("hardware", false))
	return software
}

// encoderSet parses `ffmpeg -encoders` into the set of video encoder names.
func encoderSet(ffmpegPath string) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(context.Background(), encoderProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders")
	out, err := cmd.Output()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("ffmpeg -encoders timeout after %s", encoderProbeTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders failed: %w", err)
	}

	encoders := make(map[string]struct{})
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 2 {
			continue
		}
		// Format: " V..... h264_nvenc ...", flags first, name second.
		if strings.Contains(fields[0], "V") {
			encoders[fields[1]] = struct{}{}
		}
	}
	return encoders, nil
}

// probeEncoder encodes a few synthetic frames to confirm the candidate
// actually works on this machine, not just that ffmpeg lists it.
func probeEncoder(ffmpegPath string, plan encoderPlan) error {
	ctx, cancel := context.WithTimeout(context.Background(), encoderProbeTimeout)
	defer cancel()

	args := []string{"-v", "error", "-nostdin"}
	args = append(args, plan.globalArgs...)
	args = append(args,
		"-f", "lavfi",
		"-i", "color=c=black:s=1280x720:r=30:d=0.5",
		"-an",
		"-frames:v", "8",
	)
	args = append(args, plan.pixelArgs...)
	args = append(args, "-c:v", plan.codec, "-f", "null", "-")

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var output bytes.Buffer
	cmd.Stderr = &output
	cmd.Stdout = &output

	err := cmd.Run()
	if ctx.Err() != nil {
		return fmt.Errorf("probe timeout after %s", encoderProbeTimeout)
	}
	if err != nil {
		return fmt.Errorf("probe failed: %w: %s", err, tail(strings.TrimSpace(output.String()), 240))
	}
	return nil
}

func hardwareCandidates() []encoderPlan {
	switch runtime.GOOS {
	case "darwin":
		return []encoderPlan{
			{label: "h264_videotoolbox", codec: "h264_videotoolbox", hardware: true},
		}
	case "windows":
		return []encoderPlan{
			{label: "h264_nvenc", codec: "h264_nvenc", hardware: true},
			{label: "h264_amf", codec: "h264_amf", hardware: true},
			{label: "h264_qsv", codec: "h264_qsv", hardware: true, pixelArgs: []string{"-vf", "format=nv12"}},
		}
	default:
		candidates := []encoderPlan{
			{label: "h264_nvenc", codec: "h264_nvenc", hardware: true},
		}
		devices, err := filepath.Glob("/dev/dri/renderD*")
		if err == nil {
			for _, dev := range devices {
				candidates = append(candidates, encoderPlan{
					label:      fmt.Sprintf("h264_vaapi (%s)", dev),
					codec:      "h264_vaapi",
					hardware:   true,
					globalArgs: []string{"-vaapi_device", dev},
					pixelArgs:  []string{"-vf", "format=nv12,hwupload"},
				})
			}
		}
		candidates = append(candidates, encoderPlan{
			label: "h264_qsv", codec: "h264_qsv", hardware: true,
			pixelArgs: []string{"-vf", "format=nv12"},
		})
		return candidates
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
