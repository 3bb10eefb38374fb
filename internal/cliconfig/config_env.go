package cliconfig

import (
	"os"
	"strconv"
	"strings"
)

// ApplyEnvConfig merges VEILCAP_* environment variables into the config.
// Explicitly changed flags win over the environment.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("output-dir", os.Getenv("VEILCAP_OUTPUT_DIR"), &cfg.OutputDir)
	s.setString("base-name", os.Getenv("VEILCAP_BASE_NAME"), &cfg.BaseName)

	s.setInt("frame-rate", envInt("VEILCAP_FRAME_RATE"), &cfg.FrameRate)
	s.setInt("video-bitrate", envInt("VEILCAP_VIDEO_BITRATE"), &cfg.VideoBitrateKbps)
	if err := s.setDuration("duration", os.Getenv("VEILCAP_DURATION"), &cfg.Duration); err != nil {
		return err
	}

	s.setBool("audio", envBool("VEILCAP_AUDIO"), &cfg.Audio)
	s.setString("audio-mode", os.Getenv("VEILCAP_AUDIO_MODE"), &cfg.AudioMode)
	s.setInt("audio-bitrate", envInt("VEILCAP_AUDIO_BITRATE"), &cfg.AudioBitrateKbps)

	s.setStrings("mask-app", envList("VEILCAP_MASK_APPS"), &cfg.MaskApps)
	s.setString("mask-file", os.Getenv("VEILCAP_MASK_FILE"), &cfg.MaskFile)

	s.setInt("max-restarts", envInt("VEILCAP_MAX_RESTARTS"), &cfg.MaxRestarts)
	if err := s.setDuration("drain-timeout", os.Getenv("VEILCAP_DRAIN_TIMEOUT"), &cfg.DrainTimeout); err != nil {
		return err
	}

	s.setString("ffmpeg", os.Getenv("VEILCAP_FFMPEG"), &cfg.FFmpegPath)
	s.setBool("native-audio", envBool("VEILCAP_NATIVE_AUDIO"), &cfg.NativeAudio)
	return nil
}

func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

func envBool(key string) *bool {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
