package cliconfig

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors the TOML configuration file layout.
type FileConfig struct {
	Output struct {
		Dir      string `toml:"dir"`
		BaseName string `toml:"base_name"`
	} `toml:"output"`

	Video struct {
		FrameRate        int    `toml:"frame_rate"`
		BitrateKbps      int    `toml:"bitrate_kbps"`
		KeyframeInterval int    `toml:"keyframe_interval"`
		Duration         string `toml:"duration"`
	} `toml:"video"`

	Audio struct {
		Enabled     *bool  `toml:"enabled"`
		Mode        string `toml:"mode"`
		BitrateKbps int    `toml:"bitrate_kbps"`
		SampleRate  int    `toml:"sample_rate"`
	} `toml:"audio"`

	Mask struct {
		Apps []string `toml:"apps"`
		File string   `toml:"file"`
	} `toml:"mask"`

	Restart struct {
		Max          int    `toml:"max"`
		Pause        string `toml:"pause"`
		DrainTimeout string `toml:"drain_timeout"`
	} `toml:"restart"`

	Encoder struct {
		FFmpegPath  string `toml:"ffmpeg_path"`
		NativeAudio *bool  `toml:"native_audio"`
	} `toml:"encoder"`

	// Keyed by stream-error domain, values are the codes treated as
	// recoverable for that domain.
	RecoverableCodes map[string][]int `toml:"recoverable_codes"`
}

// LoadConfigFile reads and parses a TOML configuration file.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc FileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &fc, nil
}

// ApplyFileConfig merges file values into the config. Values already set
// by an explicitly changed flag win over the file.
func ApplyFileConfig(cfg *Config, fc *FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("output-dir", fc.Output.Dir, &cfg.OutputDir)
	s.setString("base-name", fc.Output.BaseName, &cfg.BaseName)

	s.setInt("frame-rate", fc.Video.FrameRate, &cfg.FrameRate)
	s.setInt("video-bitrate", fc.Video.BitrateKbps, &cfg.VideoBitrateKbps)
	s.setInt("keyframe-interval", fc.Video.KeyframeInterval, &cfg.KeyframeInterval)
	if err := s.setDuration("duration", fc.Video.Duration, &cfg.Duration); err != nil {
		return err
	}

	s.setBool("audio", fc.Audio.Enabled, &cfg.Audio)
	s.setString("audio-mode", fc.Audio.Mode, &cfg.AudioMode)
	s.setInt("audio-bitrate", fc.Audio.BitrateKbps, &cfg.AudioBitrateKbps)
	s.setInt("sample-rate", fc.Audio.SampleRate, &cfg.SampleRate)

	s.setStrings("mask-app", fc.Mask.Apps, &cfg.MaskApps)
	s.setString("mask-file", fc.Mask.File, &cfg.MaskFile)

	s.setInt("max-restarts", fc.Restart.Max, &cfg.MaxRestarts)
	if err := s.setDuration("restart-pause", fc.Restart.Pause, &cfg.RestartPause); err != nil {
		return err
	}
	if err := s.setDuration("drain-timeout", fc.Restart.DrainTimeout, &cfg.DrainTimeout); err != nil {
		return err
	}

	s.setString("ffmpeg", fc.Encoder.FFmpegPath, &cfg.FFmpegPath)
	s.setBool("native-audio", fc.Encoder.NativeAudio, &cfg.NativeAudio)

	if len(fc.RecoverableCodes) > 0 {
		cfg.RecoverableCodes = fc.RecoverableCodes
	}
	return nil
}
